package ledger

import (
	"errors"

	"github.com/seatdesk/seatdesk/internal/apperr"
)

// Ledger errors. Each is an *apperr.Error so handlers can surface it directly;
// compare with errors.Is.
var (
	ErrLicenseNotFound    = apperr.NotFound("License not found")
	ErrNoSeatsAvailable   = apperr.Conflict("No seats available for this license")
	ErrAlreadyCheckedOut  = apperr.Conflict("You already have an active loan for this license")
	ErrActiveLoanNotFound = apperr.NotFound("No active loan found")
	ErrLoanNotFound       = apperr.NotFound("Loan not found")

	ErrStartInPast    = apperr.Validation("Start date cannot be in the past")
	ErrEndBeforeStart = apperr.Validation("End date must not be before start date")
	ErrLoanTooLong    = apperr.Validation("Loan period exceeds the maximum for this license")

	ErrLicenseNameInvalid = apperr.Validation("Name cannot contain control characters")
	ErrTooManySeats       = apperr.Validation("Total seats cannot exceed 1000000")

	ErrLicenseInUse     = apperr.Blocked("Cannot delete license with active loans")
	ErrLoanStillActive  = apperr.Blocked("Cannot delete an active loan; return it first")
	ErrTotalBelowActive = apperr.Blocked("Total seats cannot be less than the number of active loans")

	// Constraint violations reported by a Store
	ErrDuplicateLicense = apperr.Conflict("License already exists")
	ErrSeatCountRange   = apperr.Validation("Available seats must be between 0 and total")
)

// IsInvalidDateRange reports whether err is one of the date validation errors
func IsInvalidDateRange(err error) bool {
	return errors.Is(err, ErrStartInPast) || errors.Is(err, ErrEndBeforeStart) || errors.Is(err, ErrLoanTooLong)
}

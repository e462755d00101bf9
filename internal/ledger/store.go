package ledger

import (
	"context"
	"time"

	"github.com/seatdesk/seatdesk/internal/db/models"
)

// Loan status filters accepted by LoanFilter.Status in addition to the stored statuses
const StatusOverdue = "overdue"

// LoanFilter narrows ListLoans. Empty fields do not filter.
type LoanFilter struct {
	UserID         string
	LicenseID      string
	OrganizationID string
	// Status is "active", "returned", or "overdue" (active and past due at Now)
	Status string
	Now    time.Time
}

// LoanLookup identifies a loan by ID or by its (license, user) pair
type LoanLookup struct {
	LoanID     string
	LicenseID  string
	UserID     string
	ActiveOnly bool
}

// Store is the durable home of licenses and loans. All ledger mutations run inside
// WithTx; fn's error aborts the transaction and is returned unchanged.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetLicense(ctx context.Context, id string) (*models.License, error)
	// ListLicenses returns licenses ordered by name; an empty orgID lists all organizations.
	ListLicenses(ctx context.Context, orgID string) ([]*models.License, error)
	ListLoans(ctx context.Context, filter LoanFilter) ([]*models.LoanDetail, error)
}

// Tx is the set of row-level operations available inside a ledger transaction.
// Lookups return nil, nil when the row does not exist.
type Tx interface {
	// LockLicense reads the license and holds it until the transaction ends
	LockLicense(ctx context.Context, id string) (*models.License, error)
	CreateLicense(ctx context.Context, license *models.License) error
	SaveLicense(ctx context.Context, license *models.License) error
	DeleteLicense(ctx context.Context, id string) error

	// TakeSeat decrements available if it is positive and reports whether it did
	TakeSeat(ctx context.Context, licenseID string) (bool, error)
	// ReleaseSeat increments available if it is below total and reports whether it did
	ReleaseSeat(ctx context.Context, licenseID string) (bool, error)

	CountActiveLoans(ctx context.Context, licenseID string) (int, error)
	HasActiveLoan(ctx context.Context, licenseID, userID string) (bool, error)
	CreateLoan(ctx context.Context, loan *models.Loan) error
	FindLoan(ctx context.Context, lookup LoanLookup) (*models.Loan, error)
	// MarkReturned moves an active loan to returned and reports whether it was active
	MarkReturned(ctx context.Context, loanID string, at time.Time, returnedBy *string) (bool, error)
	// DeleteLoan removes a returned loan and reports whether a row was deleted
	DeleteLoan(ctx context.Context, loanID string) (bool, error)
}

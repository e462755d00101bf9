package repositories

import (
	"errors"

	"github.com/lib/pq"

	"github.com/seatdesk/seatdesk/internal/apperr"
	"github.com/seatdesk/seatdesk/internal/ledger"
)

// Constraint errors surfaced to callers as classified errors
var (
	ErrEmailTaken          = apperr.Conflict("Email already registered")
	ErrDomainTaken         = apperr.Blocked("Email domain already in use")
	ErrOrganizationMissing = apperr.Validation("Organization not found")
	ErrOrganizationInUse   = apperr.Blocked("Cannot delete organization with users or licenses")
	ErrSeatCountRange      = ledger.ErrSeatCountRange
)

// Postgres error codes
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool     { return pqCode(err) == pqUniqueViolation }
func isForeignKeyViolation(err error) bool { return pqCode(err) == pqForeignKeyViolation }
func isCheckViolation(err error) bool      { return pqCode(err) == pqCheckViolation }

// Package ledger implements the seat ledger: checkout and return of license seats with
// the guarantees that 0 <= available <= total for every license and that a user holds at
// most one active loan per license. Every mutation runs in a single Store transaction
// with the license row locked first.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/seatdesk/seatdesk/internal/apperr"
	"github.com/seatdesk/seatdesk/internal/db/models"
	"github.com/seatdesk/seatdesk/internal/telemetry"
)

const day = 24 * time.Hour

// CheckoutRequest asks for one seat of a license
type CheckoutRequest struct {
	LicenseID string
	UserID    string
	// OrganizationID scopes the lookup; a license outside it is reported as not found.
	// Empty means unscoped (admin).
	OrganizationID string
	Start          *time.Time
	End            *time.Time
}

// ReturnRequest identifies the loan to return, either by LoanID or by (LicenseID, UserID).
// Without Force the loan must belong to UserID.
type ReturnRequest struct {
	LoanID    string
	LicenseID string
	UserID    string
	ActorID   string
	Force     bool
}

// NewLicense describes a license to create
type NewLicense struct {
	OrganizationID string
	Name           string
	Total          int
	MaxLoanDays    int
}

// LicenseUpdate holds optional edits; nil fields are left unchanged
type LicenseUpdate struct {
	Name        *string
	Total       *int
	MaxLoanDays *int
}

// Ledger runs seat operations against a Store
type Ledger struct {
	store Store
	now   func() time.Time
}

// New creates a Ledger backed by store
func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// WithClock replaces the ledger's time source
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Checkout takes one seat for the user and records an active loan. Checks run in order:
// license exists, a seat is free, the user holds no active loan for it, the date range is valid.
func (l *Ledger) Checkout(ctx context.Context, req CheckoutRequest) (*models.Loan, error) {
	if req.LicenseID == "" || req.UserID == "" {
		return nil, apperr.Validation("License and user are required")
	}
	now := l.now().UTC()

	var loan *models.Loan
	err := l.store.WithTx(ctx, func(tx Tx) error {
		license, err := tx.LockLicense(ctx, req.LicenseID)
		if err != nil {
			return err
		}
		if license == nil || (req.OrganizationID != "" && license.OrganizationID != req.OrganizationID) {
			return ErrLicenseNotFound
		}
		if license.Available <= 0 {
			return ErrNoSeatsAvailable
		}

		held, err := tx.HasActiveLoan(ctx, license.ID, req.UserID)
		if err != nil {
			return err
		}
		if held {
			return ErrAlreadyCheckedOut
		}

		start, due, err := LoanWindow(now, req.Start, req.End, license.MaxLoanDays)
		if err != nil {
			return err
		}

		taken, err := tx.TakeSeat(ctx, license.ID)
		if err != nil {
			return err
		}
		if !taken {
			return ErrNoSeatsAvailable
		}

		loan = &models.Loan{
			ID:          uuid.New().String(),
			LicenseID:   license.ID,
			UserID:      req.UserID,
			LoanDate:    start,
			DueDate:     due,
			Status:      models.LoanStatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
			LicenseName: license.Name,
		}
		return tx.CreateLoan(ctx, loan)
	})

	telemetry.SeatCheckoutsTotal.WithLabelValues(checkoutResult(err)).Inc()
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Return moves an active loan to returned and gives its seat back
func (l *Ledger) Return(ctx context.Context, req ReturnRequest) (*models.Loan, error) {
	lookup := LoanLookup{ActiveOnly: true}
	switch {
	case req.LoanID != "":
		lookup.LoanID = req.LoanID
	case req.LicenseID != "" && req.UserID != "":
		lookup.LicenseID, lookup.UserID = req.LicenseID, req.UserID
	default:
		return nil, apperr.Validation("Loan ID or license and user are required")
	}
	now := l.now().UTC()

	var loan *models.Loan
	err := l.store.WithTx(ctx, func(tx Tx) error {
		found, err := tx.FindLoan(ctx, lookup)
		if err != nil {
			return err
		}
		if found == nil || (!req.Force && found.UserID != req.UserID) {
			return ErrActiveLoanNotFound
		}

		// License before loan, the same order Checkout takes them.
		license, err := tx.LockLicense(ctx, found.LicenseID)
		if err != nil {
			return err
		}
		if license == nil {
			return ErrActiveLoanNotFound
		}

		var returnedBy *string
		if req.Force && req.ActorID != "" {
			actor := req.ActorID
			returnedBy = &actor
		}
		ok, err := tx.MarkReturned(ctx, found.ID, now, returnedBy)
		if err != nil {
			return err
		}
		if !ok {
			return ErrActiveLoanNotFound
		}

		released, err := tx.ReleaseSeat(ctx, license.ID)
		if err != nil {
			return err
		}
		if !released {
			slog.Warn("seat return found license already at full availability",
				"license_id", license.ID, "loan_id", found.ID, "total", license.Total)
		}

		found.Status = models.LoanStatusReturned
		found.ReturnedAt = &now
		found.ReturnedBy = returnedBy
		found.UpdatedAt = now
		found.LicenseName = license.Name
		loan = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	mode := telemetry.ReturnSelf
	if req.Force {
		mode = telemetry.ReturnForce
	}
	telemetry.SeatReturnsTotal.WithLabelValues(mode).Inc()
	return loan, nil
}

// MaxSeats is the largest total a license may have
const MaxSeats = 1000000

// validLicenseName reports whether name is free of control characters
func validLicenseName(name string) bool {
	return strings.IndexFunc(name, unicode.IsControl) < 0
}

// CreateLicense adds a license pool with every seat available
func (l *Ledger) CreateLicense(ctx context.Context, in NewLicense) (*models.License, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case in.OrganizationID == "":
		return nil, apperr.Validation("Organization is required")
	case name == "":
		return nil, apperr.Validation("Name is required")
	case !validLicenseName(name):
		return nil, ErrLicenseNameInvalid
	case in.Total < 1:
		return nil, apperr.Validation("Total seats must be at least 1")
	case in.Total > MaxSeats:
		return nil, ErrTooManySeats
	case in.MaxLoanDays < 0:
		return nil, apperr.Validation("Max loan days must be positive")
	}
	maxDays := in.MaxLoanDays
	if maxDays == 0 {
		maxDays = models.DefaultMaxLoanDays
	}

	now := l.now().UTC()
	license := &models.License{
		ID:             uuid.New().String(),
		OrganizationID: in.OrganizationID,
		Name:           name,
		Total:          in.Total,
		Available:      in.Total,
		MaxLoanDays:    maxDays,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := l.store.WithTx(ctx, func(tx Tx) error {
		return tx.CreateLicense(ctx, license)
	})
	if err != nil {
		return nil, err
	}
	return license, nil
}

// UpdateLicense edits name, total, or loan limit. Changing total re-derives available
// as total minus active loans.
func (l *Ledger) UpdateLicense(ctx context.Context, id string, upd LicenseUpdate) (*models.License, error) {
	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return nil, apperr.Validation("Name cannot be empty")
		}
		if !validLicenseName(*upd.Name) {
			return nil, ErrLicenseNameInvalid
		}
	}
	if upd.Total != nil && *upd.Total < 0 {
		return nil, apperr.Validation("Total seats cannot be negative")
	}
	if upd.Total != nil && *upd.Total > MaxSeats {
		return nil, ErrTooManySeats
	}
	if upd.MaxLoanDays != nil && *upd.MaxLoanDays < 1 {
		return nil, apperr.Validation("Max loan days must be positive")
	}

	var license *models.License
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		license, err = tx.LockLicense(ctx, id)
		if err != nil {
			return err
		}
		if license == nil {
			return ErrLicenseNotFound
		}

		if upd.Name != nil {
			license.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.MaxLoanDays != nil {
			license.MaxLoanDays = *upd.MaxLoanDays
		}
		if upd.Total != nil {
			active, err := tx.CountActiveLoans(ctx, id)
			if err != nil {
				return err
			}
			if *upd.Total < active {
				return ErrTotalBelowActive
			}
			license.Total = *upd.Total
			license.Available = *upd.Total - active
		}
		license.UpdatedAt = l.now().UTC()
		return tx.SaveLicense(ctx, license)
	})
	if err != nil {
		return nil, err
	}
	return license, nil
}

// DeleteLicense removes a license with no active loans, along with its loan history
func (l *Ledger) DeleteLicense(ctx context.Context, id string) error {
	return l.store.WithTx(ctx, func(tx Tx) error {
		license, err := tx.LockLicense(ctx, id)
		if err != nil {
			return err
		}
		if license == nil {
			return ErrLicenseNotFound
		}
		active, err := tx.CountActiveLoans(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrLicenseInUse
		}
		return tx.DeleteLicense(ctx, id)
	})
}

// PurgeLoan deletes a returned loan record
func (l *Ledger) PurgeLoan(ctx context.Context, loanID string) error {
	return l.store.WithTx(ctx, func(tx Tx) error {
		loan, err := tx.FindLoan(ctx, LoanLookup{LoanID: loanID})
		if err != nil {
			return err
		}
		if loan == nil {
			return ErrLoanNotFound
		}
		if loan.IsActive() {
			return ErrLoanStillActive
		}
		deleted, err := tx.DeleteLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrLoanNotFound
		}
		return nil
	})
}

// License returns one license, scoped to orgID when it is non-empty
func (l *Ledger) License(ctx context.Context, id, orgID string) (*models.License, error) {
	license, err := l.store.GetLicense(ctx, id)
	if err != nil {
		return nil, err
	}
	if license == nil || (orgID != "" && license.OrganizationID != orgID) {
		return nil, ErrLicenseNotFound
	}
	return license, nil
}

// ListAvailable returns a snapshot of the organization's licenses with their current
// available and total counts. An empty orgID lists every organization.
func (l *Ledger) ListAvailable(ctx context.Context, orgID string) ([]*models.License, error) {
	return l.store.ListLicenses(ctx, orgID)
}

// ListLoans returns loans matching filter with IsOverdue and DaysRemaining derived
func (l *Ledger) ListLoans(ctx context.Context, filter LoanFilter) ([]*models.LoanDetail, error) {
	now := l.now().UTC()
	if filter.Now.IsZero() {
		filter.Now = now
	}
	loans, err := l.store.ListLoans(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, d := range loans {
		d.Derive(now)
	}
	return loans, nil
}

// LoanWindow resolves the loan's start and due time. start defaults to now and may not fall
// on a day before today (UTC). end defaults to start + maxDays; it may not fall on a day
// before start, and the two may be at most maxDays calendar days apart.
func LoanWindow(now time.Time, start, end *time.Time, maxDays int) (time.Time, time.Time, error) {
	if maxDays <= 0 {
		maxDays = models.DefaultMaxLoanDays
	}
	today := now.UTC().Truncate(day)

	s := now.UTC()
	if start != nil {
		s = start.UTC()
		if s.Truncate(day).Before(today) {
			return time.Time{}, time.Time{}, ErrStartInPast
		}
	}

	if end == nil {
		return s, s.Add(time.Duration(maxDays) * day), nil
	}
	e := end.UTC()
	startDay, endDay := s.Truncate(day), e.Truncate(day)
	if endDay.Before(startDay) {
		return time.Time{}, time.Time{}, ErrEndBeforeStart
	}
	if endDay.Sub(startDay) > time.Duration(maxDays)*day {
		return time.Time{}, time.Time{}, ErrLoanTooLong
	}
	if e.Before(s) {
		// Same calendar day but earlier than the start instant: due at end of that day.
		e = endDay.Add(day - time.Second)
	}
	return s, e, nil
}

func checkoutResult(err error) string {
	switch {
	case err == nil:
		return telemetry.CheckoutSuccess
	case errors.Is(err, ErrNoSeatsAvailable):
		return telemetry.CheckoutNoSeats
	case errors.Is(err, ErrAlreadyCheckedOut):
		return telemetry.CheckoutAlreadyHeld
	case IsInvalidDateRange(err):
		return telemetry.CheckoutInvalidDates
	case errors.Is(err, ErrLicenseNotFound):
		return telemetry.CheckoutLicenseNotFound
	default:
		return telemetry.CheckoutError
	}
}

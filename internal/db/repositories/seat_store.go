// seat_store.go implements ledger.Store on PostgreSQL. Each ledger operation runs in one
// transaction; the license row is taken with SELECT ... FOR UPDATE before any loan is
// touched, and seat counts only move through conditional updates.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/seatdesk/seatdesk/internal/db/models"
	"github.com/seatdesk/seatdesk/internal/ledger"
)

// SeatStore is the Postgres-backed ledger.Store
type SeatStore struct {
	db       *sqlx.DB
	licenses *LicenseRepository
	loans    *LoanRepository
}

var _ ledger.Store = (*SeatStore)(nil)

// NewSeatStore creates a SeatStore
func NewSeatStore(db *sqlx.DB) *SeatStore {
	return &SeatStore{
		db:       db,
		licenses: NewLicenseRepository(db),
		loans:    NewLoanRepository(db),
	}
}

// WithTx runs fn in a transaction, committing only when fn returns nil
func (s *SeatStore) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&seatTx{licenses: NewLicenseRepository(tx), loans: NewLoanRepository(tx)}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SeatStore) GetLicense(ctx context.Context, id string) (*models.License, error) {
	return s.licenses.GetByID(ctx, id)
}

func (s *SeatStore) ListLicenses(ctx context.Context, orgID string) ([]*models.License, error) {
	return s.licenses.List(ctx, orgID)
}

func (s *SeatStore) ListLoans(ctx context.Context, filter ledger.LoanFilter) ([]*models.LoanDetail, error) {
	return s.loans.ListDetailed(ctx, filter)
}

type seatTx struct {
	licenses *LicenseRepository
	loans    *LoanRepository
}

func (t *seatTx) LockLicense(ctx context.Context, id string) (*models.License, error) {
	return t.licenses.GetByIDForUpdate(ctx, id)
}

func (t *seatTx) CreateLicense(ctx context.Context, license *models.License) error {
	return t.licenses.Create(ctx, license)
}

func (t *seatTx) SaveLicense(ctx context.Context, license *models.License) error {
	return t.licenses.Update(ctx, license)
}

func (t *seatTx) DeleteLicense(ctx context.Context, id string) error {
	return t.licenses.Delete(ctx, id)
}

func (t *seatTx) TakeSeat(ctx context.Context, licenseID string) (bool, error) {
	return t.licenses.DecrementAvailable(ctx, licenseID)
}

func (t *seatTx) ReleaseSeat(ctx context.Context, licenseID string) (bool, error) {
	return t.licenses.IncrementAvailable(ctx, licenseID)
}

func (t *seatTx) CountActiveLoans(ctx context.Context, licenseID string) (int, error) {
	return t.loans.CountActiveByLicense(ctx, licenseID)
}

func (t *seatTx) HasActiveLoan(ctx context.Context, licenseID, userID string) (bool, error) {
	return t.loans.HasActive(ctx, licenseID, userID)
}

func (t *seatTx) CreateLoan(ctx context.Context, loan *models.Loan) error {
	return t.loans.Create(ctx, loan)
}

func (t *seatTx) FindLoan(ctx context.Context, lookup ledger.LoanLookup) (*models.Loan, error) {
	return t.loans.Find(ctx, lookup)
}

func (t *seatTx) MarkReturned(ctx context.Context, loanID string, at time.Time, returnedBy *string) (bool, error) {
	return t.loans.MarkReturned(ctx, loanID, at, returnedBy)
}

func (t *seatTx) DeleteLoan(ctx context.Context, loanID string) (bool, error) {
	return t.loans.DeleteReturned(ctx, loanID)
}

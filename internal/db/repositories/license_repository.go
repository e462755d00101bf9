// license_repository.go implements LicenseRepository, the queries over the licenses table.
// It runs against either the pool or an open transaction, so SeatStore reuses it inside
// ledger transactions.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/seatdesk/seatdesk/internal/db/models"
)

// LicenseRepository handles database operations for licenses
type LicenseRepository struct {
	db sqlx.ExtContext
}

// NewLicenseRepository creates a license repository over a *sqlx.DB or *sqlx.Tx
func NewLicenseRepository(db sqlx.ExtContext) *LicenseRepository {
	return &LicenseRepository{db: db}
}

const licenseColumns = `id, organization_id, name, total, available, max_loan_days, created_at, updated_at`

// GetByID retrieves a license by ID
func (r *LicenseRepository) GetByID(ctx context.Context, id string) (*models.License, error) {
	return r.get(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a license and row-locks it until the transaction ends
func (r *LicenseRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.License, error) {
	return r.get(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = $1 FOR UPDATE`, id)
}

func (r *LicenseRepository) get(ctx context.Context, query, id string) (*models.License, error) {
	var license models.License
	err := sqlx.GetContext(ctx, r.db, &license, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %w", err)
	}
	return &license, nil
}

// List returns licenses ordered by name; an empty orgID lists all organizations
func (r *LicenseRepository) List(ctx context.Context, orgID string) ([]*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses`
	args := []interface{}{}
	if orgID != "" {
		query += ` WHERE organization_id = $1`
		args = append(args, orgID)
	}
	query += ` ORDER BY name, id`

	licenses := make([]*models.License, 0)
	if err := sqlx.SelectContext(ctx, r.db, &licenses, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	return licenses, nil
}

// Create inserts a license
func (r *LicenseRepository) Create(ctx context.Context, license *models.License) error {
	query := `
		INSERT INTO licenses (id, organization_id, name, total, available, max_loan_days, created_at, updated_at)
		VALUES (:id, :organization_id, :name, :total, :available, :max_loan_days, :created_at, :updated_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, license); err != nil {
		if isForeignKeyViolation(err) {
			return ErrOrganizationMissing
		}
		return fmt.Errorf("failed to create license: %w", err)
	}
	return nil
}

// Update saves name, seat counts, and loan limit
func (r *LicenseRepository) Update(ctx context.Context, license *models.License) error {
	query := `
		UPDATE licenses
		SET name = :name, total = :total, available = :available, max_loan_days = :max_loan_days,
		    updated_at = :updated_at
		WHERE id = :id
	`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, license); err != nil {
		if isCheckViolation(err) {
			return ErrSeatCountRange
		}
		return fmt.Errorf("failed to update license: %w", err)
	}
	return nil
}

// Delete removes a license; its loan history goes with it
func (r *LicenseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM licenses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete license: %w", err)
	}
	return nil
}

// DecrementAvailable takes one seat if any is free and reports whether it did
func (r *LicenseRepository) DecrementAvailable(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE licenses
		SET available = available - 1, updated_at = NOW()
		WHERE id = $1 AND available > 0
	`
	return r.execOne(ctx, "take seat", query, id)
}

// IncrementAvailable gives one seat back if the pool is not full and reports whether it did
func (r *LicenseRepository) IncrementAvailable(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE licenses
		SET available = available + 1, updated_at = NOW()
		WHERE id = $1 AND available < total
	`
	return r.execOne(ctx, "release seat", query, id)
}

func (r *LicenseRepository) execOne(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	return n == 1, nil
}

// SeatTotals aggregates license and seat counts across all organizations
func (r *LicenseRepository) SeatTotals(ctx context.Context) (licenses, total, available int, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(total), 0), COALESCE(SUM(available), 0) FROM licenses`
	if err := r.db.QueryRowxContext(ctx, query).Scan(&licenses, &total, &available); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to sum seats: %w", err)
	}
	return licenses, total, available, nil
}

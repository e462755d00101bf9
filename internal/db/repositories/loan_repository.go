// loan_repository.go implements LoanRepository: loan lifecycle writes used inside ledger
// transactions, joined listings for users and admins, and the queries behind the reminder
// job and the admin dashboard.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/seatdesk/seatdesk/internal/db/models"
	"github.com/seatdesk/seatdesk/internal/ledger"
)

// LoanRepository handles database operations for loans
type LoanRepository struct {
	db sqlx.ExtContext
}

// NewLoanRepository creates a loan repository over a *sqlx.DB or *sqlx.Tx
func NewLoanRepository(db sqlx.ExtContext) *LoanRepository {
	return &LoanRepository{db: db}
}

const loanColumns = `id, license_id, user_id, loan_date, due_date, status, returned_at, returned_by,
	reminder_sent_at, created_at, updated_at`

const loanDetailSelect = `
	SELECT l.id, l.license_id, l.user_id, l.loan_date, l.due_date, l.status, l.returned_at,
	       l.returned_by, l.reminder_sent_at, l.created_at, l.updated_at,
	       lic.name AS license_name, lic.organization_id,
	       u.name AS user_name, u.email AS user_email
	FROM loans l
	JOIN licenses lic ON lic.id = l.license_id
	JOIN users u ON u.id = l.user_id
`

// Create inserts a loan. A second active loan for the same user and license violates
// idx_loans_active_user_license and is reported as ledger.ErrAlreadyCheckedOut.
func (r *LoanRepository) Create(ctx context.Context, loan *models.Loan) error {
	query := `
		INSERT INTO loans (id, license_id, user_id, loan_date, due_date, status, created_at, updated_at)
		VALUES (:id, :license_id, :user_id, :loan_date, :due_date, :status, :created_at, :updated_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, loan); err != nil {
		switch {
		case isUniqueViolation(err):
			return ledger.ErrAlreadyCheckedOut
		case isForeignKeyViolation(err):
			return ledger.ErrLicenseNotFound
		}
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// Find returns the most recent loan matching lookup
func (r *LoanRepository) Find(ctx context.Context, lookup ledger.LoanLookup) (*models.Loan, error) {
	conds := make([]string, 0, 4)
	args := make([]interface{}, 0, 3)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if lookup.LoanID != "" {
		add("id = $%d", lookup.LoanID)
	}
	if lookup.LicenseID != "" {
		add("license_id = $%d", lookup.LicenseID)
	}
	if lookup.UserID != "" {
		add("user_id = $%d", lookup.UserID)
	}
	if len(conds) == 0 {
		return nil, nil
	}
	if lookup.ActiveOnly {
		conds = append(conds, "status = 'active'")
	}

	query := `SELECT ` + loanColumns + ` FROM loans WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY loan_date DESC LIMIT 1`

	var loan models.Loan
	err := sqlx.GetContext(ctx, r.db, &loan, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find loan: %w", err)
	}
	return &loan, nil
}

// HasActive reports whether the user holds an active loan for the license
func (r *LoanRepository) HasActive(ctx context.Context, licenseID, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM loans WHERE license_id = $1 AND user_id = $2 AND status = 'active')`
	var exists bool
	if err := r.db.QueryRowxContext(ctx, query, licenseID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check active loan: %w", err)
	}
	return exists, nil
}

// CountActiveByLicense returns the number of active loans on a license
func (r *LoanRepository) CountActiveByLicense(ctx context.Context, licenseID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM loans WHERE license_id = $1 AND status = 'active'`
	if err := r.db.QueryRowxContext(ctx, query, licenseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active loans: %w", err)
	}
	return n, nil
}

// MarkReturned moves an active loan to returned and reports whether it was active
func (r *LoanRepository) MarkReturned(ctx context.Context, loanID string, at time.Time, returnedBy *string) (bool, error) {
	query := `
		UPDATE loans
		SET status = 'returned', returned_at = $2, returned_by = $3, updated_at = $2
		WHERE id = $1 AND status = 'active'
	`
	res, err := r.db.ExecContext(ctx, query, loanID, at, returnedBy)
	if err != nil {
		return false, fmt.Errorf("failed to return loan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to return loan: %w", err)
	}
	return n == 1, nil
}

// DeleteReturned removes a returned loan and reports whether a row was deleted
func (r *LoanRepository) DeleteReturned(ctx context.Context, loanID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM loans WHERE id = $1 AND status = 'returned'`, loanID)
	if err != nil {
		return false, fmt.Errorf("failed to delete loan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete loan: %w", err)
	}
	return n == 1, nil
}

// ListDetailed returns loans joined with license and user, newest first
func (r *LoanRepository) ListDetailed(ctx context.Context, filter ledger.LoanFilter) ([]*models.LoanDetail, error) {
	conds := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("l.user_id = $%d", filter.UserID)
	}
	if filter.LicenseID != "" {
		add("l.license_id = $%d", filter.LicenseID)
	}
	if filter.OrganizationID != "" {
		add("lic.organization_id = $%d", filter.OrganizationID)
	}
	switch filter.Status {
	case "":
	case ledger.StatusOverdue:
		conds = append(conds, "l.status = 'active'")
		add("l.due_date < $%d", filter.Now)
	default:
		add("l.status = $%d", filter.Status)
	}

	query := loanDetailSelect
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY l.loan_date DESC, l.id`

	loans := make([]*models.LoanDetail, 0)
	if err := sqlx.SelectContext(ctx, r.db, &loans, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return loans, nil
}

// FindDueForReminder returns active, un-reminded loans due before cutoff
func (r *LoanRepository) FindDueForReminder(ctx context.Context, cutoff time.Time) ([]*models.LoanDetail, error) {
	query := loanDetailSelect + `
		WHERE l.status = 'active' AND l.reminder_sent_at IS NULL AND l.due_date <= $1
		ORDER BY l.due_date
	`
	loans := make([]*models.LoanDetail, 0)
	if err := sqlx.SelectContext(ctx, r.db, &loans, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to find loans due for reminder: %w", err)
	}
	return loans, nil
}

// MarkReminderSent stamps reminder_sent_at so the loan is not reminded again
func (r *LoanRepository) MarkReminderSent(ctx context.Context, loanID string, at time.Time) error {
	query := `UPDATE loans SET reminder_sent_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, loanID, at); err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

// LoanCounts summarises loans for the admin dashboard
type LoanCounts struct {
	Active          int `json:"active_loans" db:"active"`
	Overdue         int `json:"overdue_loans" db:"overdue"`
	CheckoutsRecent int `json:"checkouts_last_30_days" db:"recent"`
}

// Counts returns active and overdue loans at now and checkouts since since
func (r *LoanRepository) Counts(ctx context.Context, now, since time.Time) (*LoanCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active') AS active,
			COUNT(*) FILTER (WHERE status = 'active' AND due_date < $1) AS overdue,
			COUNT(*) FILTER (WHERE loan_date >= $2) AS recent
		FROM loans
	`
	var c LoanCounts
	if err := sqlx.GetContext(ctx, r.db, &c, query, now, since); err != nil {
		return nil, fmt.Errorf("failed to count loans: %w", err)
	}
	return &c, nil
}

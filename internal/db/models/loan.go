// Package models - loan.go defines the Loan model (one user holding one seat of one license)
// and LoanDetail, the joined read model with derived overdue fields.
package models

import (
	"math"
	"time"
)

// Loan statuses. active -> returned is the only transition.
const (
	LoanStatusActive   = "active"
	LoanStatusReturned = "returned"
)

// Loan is a checkout record
type Loan struct {
	ID             string     `json:"id" db:"id"`
	LicenseID      string     `json:"license_id" db:"license_id"`
	UserID         string     `json:"user_id" db:"user_id"`
	LoanDate       time.Time  `json:"loan_date" db:"loan_date"`
	DueDate        time.Time  `json:"due_date" db:"due_date"`
	Status         string     `json:"status" db:"status"`
	ReturnedAt     *time.Time `json:"returned_at,omitempty" db:"returned_at"`
	ReturnedBy     *string    `json:"returned_by,omitempty" db:"returned_by"` // admin ID on force-return
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty" db:"reminder_sent_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`

	// LicenseName is filled in for display and is not a loans column
	LicenseName string `json:"license_name,omitempty" db:"-"`
}

// IsActive reports whether the loan still holds a seat
func (l *Loan) IsActive() bool {
	return l.Status == LoanStatusActive
}

// LoanDetail is a loan joined with its license and user, plus fields derived at read time.
type LoanDetail struct {
	Loan
	LicenseName    string `json:"license_name" db:"license_name"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	UserName       string `json:"user_name" db:"user_name"`
	UserEmail      string `json:"user_email" db:"user_email"`

	IsOverdue     bool `json:"is_overdue" db:"-"`
	DaysRemaining int  `json:"days_remaining" db:"-"`
}

// Derive computes IsOverdue and DaysRemaining relative to now. DaysRemaining is
// negative once the due date has passed.
func (d *LoanDetail) Derive(now time.Time) {
	d.IsOverdue = d.Status == LoanStatusActive && d.DueDate.Before(now)
	days := d.DueDate.Sub(now).Hours() / 24
	if days >= 0 {
		d.DaysRemaining = int(math.Ceil(days))
	} else {
		d.DaysRemaining = int(math.Floor(days))
	}
}

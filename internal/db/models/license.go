// Package models - license.go defines the License model: a named pool of interchangeable
// seats owned by an organization.
package models

import "time"

// DefaultMaxLoanDays is used when a license is created without a loan limit
const DefaultMaxLoanDays = 30

// License is a pool of seats. 0 <= Available <= Total always holds.
type License struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Total          int       `json:"total" db:"total"`
	Available      int       `json:"available" db:"available"`
	MaxLoanDays    int       `json:"max_loan_days" db:"max_loan_days"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// InUse returns the number of seats currently checked out
func (l *License) InUse() int {
	return l.Total - l.Available
}

// Package models - organization.go defines the Organization model: an institution whose
// members share license pools and which may claim an email domain for auto-provisioning.
package models

import "time"

// Organization represents an institution that owns licenses and users
type Organization struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	EmailDomain   *string   `json:"email_domain,omitempty" db:"email_domain"` // e.g. "example.edu", unique case-insensitively
	// AutoProvision lets users whose email matches EmailDomain register without an invitation
	AutoProvision bool      `json:"auto_provision" db:"auto_provision"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

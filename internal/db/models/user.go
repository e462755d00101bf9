// Package models - user.go defines the User model for seatdesk accounts along with
// the role constants used for authorization.
package models

import "time"

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a person who can check out license seats
type User struct {
	ID             string  `json:"id" db:"id"`
	Name           string  `json:"name" db:"name"`
	Email          string  `json:"email" db:"email"`
	PasswordHash   string  `json:"-" db:"password_hash"`
	OrganizationID *string `json:"organization_id,omitempty" db:"organization_id"`
	Role           string  `json:"role" db:"role"`

	// FirstLogin is set for new accounts until the first password change
	FirstLogin bool      `json:"first_login" db:"first_login"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// OrgID returns the organization ID or "" when the user has none
func (u *User) OrgID() string {
	if u.OrganizationID == nil {
		return ""
	}
	return *u.OrganizationID
}

// UserWithOrganization is a user joined with its organization name for listings
type UserWithOrganization struct {
	User
	OrganizationName *string `json:"organization_name,omitempty" db:"organization_name"`
}

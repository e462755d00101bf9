// Package auth - scopes.go defines the permission scopes granted to each role and the
// HasScope, HasAnyScope, and HasAllScopes helpers used by the RBAC middleware.
package auth

import (
	"fmt"

	"github.com/seatdesk/seatdesk/internal/db/models"
)

// Scope represents a permission/scope type
type Scope string

const (
	// License scopes
	ScopeLicensesRead   Scope = "licenses:read"
	ScopeLicensesManage Scope = "licenses:manage" // Create, edit, delete license pools

	// Loan scopes
	ScopeLoansCheckout Scope = "loans:checkout" // Check out and return own seats
	ScopeLoansRead     Scope = "loans:read"     // View every loan
	ScopeLoansManage   Scope = "loans:manage"   // Force-return and purge

	// User and organization management
	ScopeUsersRead          Scope = "users:read"
	ScopeUsersWrite         Scope = "users:write"
	ScopeOrganizationsRead  Scope = "organizations:read"
	ScopeOrganizationsWrite Scope = "organizations:write"

	// Audit log scopes
	ScopeAuditRead Scope = "audit:read"

	// Admin scope (wildcard - all permissions)
	ScopeAdmin Scope = "admin"
)

// implied maps a scope to the scopes it also grants
var implied = map[Scope][]Scope{
	ScopeLicensesManage:     {ScopeLicensesRead},
	ScopeLoansManage:        {ScopeLoansRead},
	ScopeUsersWrite:         {ScopeUsersRead},
	ScopeOrganizationsWrite: {ScopeOrganizationsRead},
}

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeLicensesRead,
		ScopeLicensesManage,
		ScopeLoansCheckout,
		ScopeLoansRead,
		ScopeLoansManage,
		ScopeUsersRead,
		ScopeUsersWrite,
		ScopeOrganizationsRead,
		ScopeOrganizationsWrite,
		ScopeAuditRead,
		ScopeAdmin,
	}
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	valid := make(map[string]bool, len(AllScopes()))
	for _, s := range AllScopes() {
		valid[string(s)] = true
	}
	for _, scope := range scopes {
		if !valid[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}
	return nil
}

// ScopesForRole returns the scopes a role is granted
func ScopesForRole(role string) []string {
	switch role {
	case models.RoleAdmin:
		return []string{string(ScopeAdmin)}
	case models.RoleUser:
		return []string{string(ScopeLicensesRead), string(ScopeLoansCheckout)}
	default:
		return nil
	}
}

// HasScope checks if a user has a required scope.
// The admin scope grants everything; manage/write scopes grant their read scope.
func HasScope(userScopes []string, required Scope) bool {
	for _, scope := range userScopes {
		if scope == string(required) || scope == string(ScopeAdmin) {
			return true
		}
		for _, s := range implied[Scope(scope)] {
			if s == required {
				return true
			}
		}
	}
	return false
}

// HasAnyScope checks if a user has at least one of the required scopes
func HasAnyScope(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(userScopes, required) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if a user has all of the required scopes
func HasAllScopes(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if !HasScope(userScopes, required) {
			return false
		}
	}
	return true
}

// account.go holds the email, domain, and password checks used at registration, login,
// and organization setup.
package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

const (
	// MinPasswordLength matches auth.MinPasswordLength
	MinPasswordLength = 6
	// MaxPasswordLength is bcrypt's input limit in bytes
	MaxPasswordLength = 72
)

var domainLabel = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// NormalizeEmail trims and lowercases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email address: %s", email)
	}
	return nil
}

// EmailDomain returns the lowercased domain part of an address
func EmailDomain(email string) (string, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return "", err
	}
	at := strings.LastIndex(email, "@")
	return email[at+1:], nil
}

// ValidateDomain checks an organization email domain such as "example.edu"
func ValidateDomain(domain string) error {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return fmt.Errorf("domain is required")
	}
	if len(d) > 253 {
		return fmt.Errorf("domain is too long")
	}
	labels := strings.Split(d, ".")
	if len(labels) < 2 {
		return fmt.Errorf("invalid domain: %s", domain)
	}
	for _, label := range labels {
		if !domainLabel.MatchString(label) {
			return fmt.Errorf("invalid domain: %s", domain)
		}
	}
	return nil
}

// ValidatePassword checks password length bounds
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d bytes", MaxPasswordLength)
	}
	return nil
}

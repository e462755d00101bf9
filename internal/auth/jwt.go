// Package auth - jwt.go handles session token creation, signing, and verification with the
// configured shared secret. There is no fallback secret: ConfigureJWT must succeed before
// any token is issued or checked.
package auth

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim of every session token
const Issuer = "seatdesk"

// MinSecretLength is the recommended minimum JWT secret length
const MinSecretLength = 32

var (
	jwtMu     sync.RWMutex
	jwtSecret []byte
	jwtTTL    = 24 * time.Hour
)

// ErrJWTNotConfigured is returned when tokens are used before ConfigureJWT
var ErrJWTNotConfigured = errors.New("jwt secret is not configured")

// Claims represents the JWT claims structure
type Claims struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	OrganizationID string `json:"organization_id,omitempty"`
	Role           string `json:"role"`
	FirstLogin     bool   `json:"first_login"`
	jwt.RegisteredClaims
}

// Identity is what a session token asserts about its bearer
type Identity struct {
	UserID         string
	Email          string
	OrganizationID string
	Role           string
	FirstLogin     bool
}

// ConfigureJWT installs the signing secret and token lifetime. Call it at startup.
func ConfigureJWT(secret string, ttl time.Duration) error {
	if secret == "" {
		return errors.New("auth.jwt_secret is required (generate one with: openssl rand -hex 32)")
	}
	if len(secret) < MinSecretLength {
		log.Printf("WARNING: JWT secret is shorter than the recommended %d characters", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	jwtMu.Lock()
	defer jwtMu.Unlock()
	jwtSecret = []byte(secret)
	jwtTTL = ttl
	return nil
}

// TokenTTL returns the configured session lifetime
func TokenTTL() time.Duration {
	jwtMu.RLock()
	defer jwtMu.RUnlock()
	return jwtTTL
}

func signingKey() ([]byte, error) {
	jwtMu.RLock()
	defer jwtMu.RUnlock()
	if len(jwtSecret) == 0 {
		return nil, ErrJWTNotConfigured
	}
	return jwtSecret, nil
}

// GenerateJWT issues a session token for id valid for the configured TTL
func GenerateJWT(id Identity) (string, time.Time, error) {
	return GenerateJWTWithTTL(id, TokenTTL())
}

// GenerateJWTWithTTL issues a session token with an explicit lifetime
func GenerateJWTWithTTL(id Identity, ttl time.Duration) (string, time.Time, error) {
	secret, err := signingKey()
	if err != nil {
		return "", time.Time{}, err
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		UserID:         id.UserID,
		Email:          id.Email,
		OrganizationID: id.OrganizationID,
		Role:           id.Role,
		FirstLogin:     id.FirstLogin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Subject:   id.UserID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ValidateJWT parses and validates a session token
func ValidateJWT(tokenString string) (*Claims, error) {
	secret, err := signingKey()
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}

// Identity returns the identity asserted by the claims
func (c *Claims) Identity() Identity {
	return Identity{
		UserID:         c.UserID,
		Email:          c.Email,
		OrganizationID: c.OrganizationID,
		Role:           c.Role,
		FirstLogin:     c.FirstLogin,
	}
}

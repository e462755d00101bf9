// Package apperr defines the error taxonomy shared by the ledger, repositories, and HTTP
// handlers. Every *Error carries the HTTP status it should be surfaced with.
package apperr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an error independently of its HTTP status
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDependency:
		return "dependency"
	default:
		return "unknown"
	}
}

// Error is a classified, user-presentable error
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error // underlying cause, never shown to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a 400 error for malformed input
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: msg}
}

// Unauthorized returns a 401 error
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindAuth, Status: http.StatusUnauthorized, Message: msg}
}

// Forbidden returns a 403 error
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: msg}
}

// NotFound returns a 404 error
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: msg}
}

// Conflict returns a 409 error
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: msg}
}

// Blocked returns a conflict surfaced as 400, used where a business rule rejects a
// delete or edit (active loans, attached users, duplicate domain).
func Blocked(msg string) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusBadRequest, Message: msg}
}

// Dependency wraps a data-store or upstream failure as a 500
func Dependency(msg string, err error) *Error {
	return &Error{Kind: KindDependency, Status: http.StatusInternalServerError, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or KindDependency for unclassified errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependency
}

// StatusOf returns the HTTP status for err; unclassified errors map to 500
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Respond writes err as {"error": message}. Dependency and unclassified errors are
// logged and replaced by a generic message.
func Respond(c *gin.Context, err error) {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindDependency {
		msg := "Internal server error"
		if e != nil {
			msg = e.Message
		}
		slog.Error("request failed",
			"path", c.FullPath(),
			"method", c.Request.Method,
			"request_id", c.GetString("request_id"),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}
	c.JSON(e.Status, gin.H{"error": e.Message})
}

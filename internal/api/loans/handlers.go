// Package loans implements the member-facing seat endpoints: browsing the organization's
// licenses, checking a seat out, returning it, and listing one's own loans. Every seat
// mutation goes through the ledger.
package loans

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seatdesk/seatdesk/internal/apperr"
	"github.com/seatdesk/seatdesk/internal/db/models"
	"github.com/seatdesk/seatdesk/internal/ledger"
	"github.com/seatdesk/seatdesk/internal/middleware"
)

// dateOnly is accepted for start and end alongside RFC 3339 timestamps
const dateOnly = "2006-01-02"

// Handlers serves /licenses and /loans
type Handlers struct {
	ledger *ledger.Ledger
}

// NewHandlers creates loan handlers backed by l
func NewHandlers(l *ledger.Ledger) *Handlers {
	return &Handlers{ledger: l}
}

type checkoutRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ParseLoanTime parses an RFC 3339 timestamp or a YYYY-MM-DD date in UTC. A bare date
// is the start of that day, or its last second when endOfDay is set. Empty input is nil.
func ParseLoanTime(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	d, err := time.ParseInLocation(dateOnly, value, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", value)
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Second)
	}
	return &d, nil
}

// scope returns the organization a user's seat operations are limited to. Admins are
// unscoped. ok is false for a member with no organization.
func scope(user *models.User) (orgID string, ok bool) {
	if user.IsAdmin() {
		return "", true
	}
	orgID = user.OrgID()
	return orgID, orgID != ""
}

func requireUser(c *gin.Context) *models.User {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return user
}

// @Summary      List licenses
// @Description  Licenses of the caller's organization with current availability.
// @Tags         Licenses
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   models.License
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /licenses [get]
// ListLicensesHandler returns the caller's organization's licenses
func (h *Handlers) ListLicensesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(c)
		if user == nil {
			return
		}
		// Admins see their own organization, or every organization when they have none.
		orgID := user.OrgID()
		if orgID == "" && !user.IsAdmin() {
			c.JSON(http.StatusOK, []*models.License{})
			return
		}

		licenses, err := h.ledger.ListAvailable(c.Request.Context(), orgID)
		if err != nil {
			apperr.Respond(c, apperr.Dependency("Failed to list licenses", err))
			return
		}
		c.JSON(http.StatusOK, licenses)
	}
}

// @Summary      Check out a seat
// @Description  Take one seat of a license. start defaults to now and end to start plus the license's max loan days.
// @Tags         Loans
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "License ID"
// @Success      201  {object}  map[string]interface{}  "message, loan"
// @Failure      400  {object}  map[string]interface{}  "Invalid date range"
// @Failure      404  {object}  map[string]interface{}  "License not found"
// @Failure      409  {object}  map[string]interface{}  "No seats available or already checked out"
// @Router       /licenses/{id}/loan [post]
// CheckoutHandler checks a seat out for the caller
func (h *Handlers) CheckoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(c)
		if user == nil {
			return
		}
		orgID, ok := scope(user)
		if !ok {
			apperr.Respond(c, ledger.ErrLicenseNotFound)
			return
		}

		// The body is optional; an empty one means "now until the default due date".
		var req checkoutRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
				return
			}
		}
		start, err := ParseLoanTime(req.Start, false)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be a date (YYYY-MM-DD) or RFC 3339 timestamp"})
			return
		}
		end, err := ParseLoanTime(req.End, true)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be a date (YYYY-MM-DD) or RFC 3339 timestamp"})
			return
		}

		loan, err := h.ledger.Checkout(c.Request.Context(), ledger.CheckoutRequest{
			LicenseID:      c.Param("id"),
			UserID:         user.ID,
			OrganizationID: orgID,
			Start:          start,
			End:            end,
		})
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		middleware.AddAuditMetadata(c, "loan_id", loan.ID)
		middleware.AddAuditMetadata(c, "due_date", loan.DueDate.UTC().Format(time.RFC3339))
		c.JSON(http.StatusCreated, gin.H{
			"message": "License checked out",
			"loan":    loan,
		})
	}
}

// @Summary      Return a license
// @Description  Return the caller's active loan on the license.
// @Tags         Loans
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "License ID"
// @Success      200  {object}  map[string]interface{}  "message, loan"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "No active loan found"
// @Router       /licenses/{id}/return [post]
// ReturnLicenseHandler returns the caller's active loan on the license in the path
func (h *Handlers) ReturnLicenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(c)
		if user == nil {
			return
		}
		h.returnLoan(c, ledger.ReturnRequest{LicenseID: c.Param("id"), UserID: user.ID})
	}
}

// @Summary      Return a loan
// @Tags         Loans
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Loan ID"
// @Success      200  {object}  map[string]interface{}  "message, loan"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "No active loan found"
// @Router       /loans/{id}/return [post]
// ReturnLoanHandler returns one of the caller's loans by ID
func (h *Handlers) ReturnLoanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(c)
		if user == nil {
			return
		}
		h.returnLoan(c, ledger.ReturnRequest{LoanID: c.Param("id"), UserID: user.ID})
	}
}

func (h *Handlers) returnLoan(c *gin.Context, req ledger.ReturnRequest) {
	loan, err := h.ledger.Return(c.Request.Context(), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	middleware.AddAuditMetadata(c, "loan_id", loan.ID)
	middleware.AddAuditMetadata(c, "license_id", loan.LicenseID)
	c.JSON(http.StatusOK, gin.H{
		"message": "License returned",
		"loan":    loan,
	})
}

// @Summary      List my loans
// @Tags         Loans
// @Security     Bearer
// @Produce      json
// @Param        status  query  string  false  "active, returned, or overdue"
// @Success      200  {array}   models.LoanDetail
// @Failure      400  {object}  map[string]interface{}  "Invalid status filter"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /loans [get]
// ListLoansHandler returns the caller's loans, newest first
func (h *Handlers) ListLoansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(c)
		if user == nil {
			return
		}
		status := c.Query("status")
		if !ValidStatusFilter(status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of: active, returned, overdue"})
			return
		}

		loans, err := h.ledger.ListLoans(c.Request.Context(), ledger.LoanFilter{
			UserID: user.ID,
			Status: status,
		})
		if err != nil {
			apperr.Respond(c, apperr.Dependency("Failed to list loans", err))
			return
		}
		c.JSON(http.StatusOK, loans)
	}
}

// ValidStatusFilter reports whether s is an accepted loan status filter
func ValidStatusFilter(s string) bool {
	switch s {
	case "", models.LoanStatusActive, models.LoanStatusReturned, ledger.StatusOverdue:
		return true
	}
	return false
}

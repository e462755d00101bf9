// licenses.go implements admin handlers for license pools. Every change to a pool's seat
// counts goes through the ledger so it happens under the same row lock as checkouts.
package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/seatdesk/seatdesk/internal/apperr"
	"github.com/seatdesk/seatdesk/internal/db/models"
	"github.com/seatdesk/seatdesk/internal/ledger"
	"github.com/seatdesk/seatdesk/internal/middleware"
	"github.com/seatdesk/seatdesk/internal/validation"
)

// LicenseHandlers handles license management endpoints
type LicenseHandlers struct {
	ledger *ledger.Ledger
}

// NewLicenseHandlers creates a new LicenseHandlers instance
func NewLicenseHandlers(l *ledger.Ledger) *LicenseHandlers {
	return &LicenseHandlers{ledger: l}
}

// CreateLicenseRequest is the body of POST /admin/licenses
type CreateLicenseRequest struct {
	// OrganizationID defaults to the acting admin's organization
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name" binding:"notblank,max=255"`
	Total          int    `json:"total" binding:"required,min=1,max=1000000"`
	MaxLoanDays    int    `json:"max_loan_days" binding:"omitempty,min=1,max=365"`
}

// UpdateLicenseRequest is the body of PUT /admin/licenses/:id
type UpdateLicenseRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=255"`
	Total       *int    `json:"total" binding:"omitempty,min=0,max=1000000"`
	MaxLoanDays *int    `json:"max_loan_days" binding:"omitempty,min=1,max=365"`
}

// @Summary      List licenses
// @Description  All license pools, optionally filtered by organization.
// @Tags         Licenses
// @Security     Bearer
// @Produce      json
// @Param        organization_id  query  string  false  "Organization ID"
// @Success      200  {array}   models.License
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Router       /admin/licenses [get]
// ListLicensesHandler lists license pools
func (h *LicenseHandlers) ListLicensesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		licenses, err := h.ledger.ListAvailable(c.Request.Context(), c.Query("organization_id"))
		if err != nil {
			apperr.Respond(c, apperr.Dependency("Failed to list licenses", err))
			return
		}
		c.JSON(http.StatusOK, licenses)
	}
}

// @Summary      Get license
// @Description  One license pool with its active loans.
// @Tags         Licenses
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "License ID"
// @Success      200  {object}  map[string]interface{}  "license, active_loans"
// @Failure      404  {object}  map[string]interface{}  "License not found"
// @Router       /admin/licenses/{id} [get]
// GetLicenseHandler returns one license with its active loans
func (h *LicenseHandlers) GetLicenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		license, err := h.ledger.License(c.Request.Context(), c.Param("id"), "")
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		loans, err := h.ledger.ListLoans(c.Request.Context(), ledger.LoanFilter{
			LicenseID: license.ID,
			Status:    models.LoanStatusActive,
		})
		if err != nil {
			apperr.Respond(c, apperr.Dependency("Failed to list loans", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"license":      license,
			"active_loans": loans,
		})
	}
}

// @Summary      Create license
// @Tags         Licenses
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateLicenseRequest  true  "License"
// @Success      201  {object}  models.License
// @Failure      400  {object}  map[string]interface{}  "Validation error"
// @Failure      409  {object}  map[string]interface{}  "License already exists"
// @Router       /admin/licenses [post]
// CreateLicenseHandler creates a license pool with every seat available
func (h *LicenseHandlers) CreateLicenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateLicenseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		orgID := strings.TrimSpace(req.OrganizationID)
		if orgID == "" {
			orgID = c.GetString(middleware.ContextOrganizationID)
		}

		license, err := h.ledger.CreateLicense(c.Request.Context(), ledger.NewLicense{
			OrganizationID: orgID,
			Name:           req.Name,
			Total:          req.Total,
			MaxLoanDays:    req.MaxLoanDays,
		})
		if err != nil {
			respondLedger(c, "Failed to create license", err)
			return
		}
		c.JSON(http.StatusCreated, license)
	}
}

// @Summary      Update license
// @Description  Changing total re-derives available seats from the number of active loans.
// @Tags         Licenses
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                true  "License ID"
// @Param        body  body  UpdateLicenseRequest  true  "Fields to change"
// @Success      200  {object}  models.License
// @Failure      400  {object}  map[string]interface{}  "Validation error or total below active loans"
// @Failure      404  {object}  map[string]interface{}  "License not found"
// @Router       /admin/licenses/{id} [put]
// UpdateLicenseHandler edits a license. Changing total re-derives available from the
// number of active loans.
func (h *LicenseHandlers) UpdateLicenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateLicenseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		license, err := h.ledger.UpdateLicense(c.Request.Context(), c.Param("id"), ledger.LicenseUpdate{
			Name:        req.Name,
			Total:       req.Total,
			MaxLoanDays: req.MaxLoanDays,
		})
		if err != nil {
			respondLedger(c, "Failed to update license", err)
			return
		}
		c.JSON(http.StatusOK, license)
	}
}

// @Summary      Delete license
// @Tags         Licenses
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "License ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "License has active loans"
// @Failure      404  {object}  map[string]interface{}  "License not found"
// @Router       /admin/licenses/{id} [delete]
// DeleteLicenseHandler deletes a license that has no active loans
func (h *LicenseHandlers) DeleteLicenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.ledger.DeleteLicense(c.Request.Context(), c.Param("id")); err != nil {
			respondLedger(c, "Failed to delete license", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "License deleted successfully"})
	}
}

// respondLedger writes a classified ledger error as is and wraps anything else as a
// dependency failure with msg
func respondLedger(c *gin.Context, msg string, err error) {
	if apperr.KindOf(err) == apperr.KindDependency {
		err = apperr.Dependency(msg, err)
	}
	apperr.Respond(c, err)
}

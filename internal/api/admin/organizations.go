// organizations.go implements handlers for organization CRUD. An organization may claim
// one email domain; with auto_provision set, users on that domain can self-register.
package admin

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/seatdesk/seatdesk/internal/apperr"
	"github.com/seatdesk/seatdesk/internal/db/models"
	"github.com/seatdesk/seatdesk/internal/db/repositories"
	"github.com/seatdesk/seatdesk/internal/validation"
)

// OrganizationHandlers handles organization management endpoints
type OrganizationHandlers struct {
	orgRepo *repositories.OrganizationRepository
}

// NewOrganizationHandlers creates a new OrganizationHandlers instance
func NewOrganizationHandlers(db *sql.DB) *OrganizationHandlers {
	return &OrganizationHandlers{
		orgRepo: repositories.NewOrganizationRepository(db),
	}
}

// CreateOrganizationRequest is the body of POST /admin/organizations
type CreateOrganizationRequest struct {
	Name          string  `json:"name" binding:"notblank,max=255"`
	EmailDomain   *string `json:"email_domain"`
	AutoProvision bool    `json:"auto_provision"`
}

// UpdateOrganizationRequest is the body of PUT /admin/organizations/:id. An empty
// email_domain clears the claim.
type UpdateOrganizationRequest struct {
	Name          *string `json:"name" binding:"omitempty,max=255"`
	EmailDomain   *string `json:"email_domain"`
	AutoProvision *bool   `json:"auto_provision"`
}

// normalizeDomainField validates an optional domain and returns nil for an empty one
func normalizeDomainField(domain *string) (*string, error) {
	if domain == nil {
		return nil, nil
	}
	d := repositories.NormalizeDomain(*domain)
	if d == "" {
		return nil, nil
	}
	if err := validation.ValidateDomain(d); err != nil {
		return nil, apperr.Validation("email_domain must be a valid domain name")
	}
	return &d, nil
}

func respondOrgError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
	case apperr.KindOf(err) != apperr.KindDependency:
		apperr.Respond(c, err)
	default:
		apperr.Respond(c, apperr.Dependency(msg, err))
	}
}

// @Summary      List organizations
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   models.Organization
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Router       /admin/organizations [get]
// ListOrganizationsHandler lists all organizations
func (h *OrganizationHandlers) ListOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgs, err := h.orgRepo.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list organizations",
			})
			return
		}
		c.JSON(http.StatusOK, orgs)
	}
}

// @Summary      Get organization
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Organization ID"
// @Success      200  {object}  map[string]interface{}  "organization, user_count, license_count"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Router       /admin/organizations/{id} [get]
// GetOrganizationHandler retrieves a specific organization by ID with its reference counts
func (h *OrganizationHandlers) GetOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("id")

		org, err := h.orgRepo.GetByID(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve organization",
			})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Organization not found",
			})
			return
		}

		users, licenses, err := h.orgRepo.CountReferences(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to count organization references",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"organization":  org,
			"user_count":    users,
			"license_count": licenses,
		})
	}
}

// @Summary      Create organization
// @Tags         Organizations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateOrganizationRequest  true  "Organization"
// @Success      201  {object}  models.Organization
// @Failure      400  {object}  map[string]interface{}  "Validation error or email domain already in use"
// @Router       /admin/organizations [post]
// CreateOrganizationHandler creates an organization
func (h *OrganizationHandlers) CreateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		domain, err := normalizeDomainField(req.EmailDomain)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		if req.AutoProvision && domain == nil {
			apperr.Respond(c, apperr.Validation("auto_provision requires an email_domain"))
			return
		}

		org := &models.Organization{
			Name:          strings.TrimSpace(req.Name),
			EmailDomain:   domain,
			AutoProvision: req.AutoProvision,
		}
		if err := h.orgRepo.Create(c.Request.Context(), org); err != nil {
			respondOrgError(c, "Failed to create organization", err)
			return
		}
		c.JSON(http.StatusCreated, org)
	}
}

// @Summary      Update organization
// @Tags         Organizations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                     true  "Organization ID"
// @Param        body  body  UpdateOrganizationRequest  true  "Fields to change"
// @Success      200  {object}  models.Organization
// @Failure      400  {object}  map[string]interface{}  "Validation error or email domain already in use"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Router       /admin/organizations/{id} [put]
// UpdateOrganizationHandler edits name, email domain, and auto-provisioning
func (h *OrganizationHandlers) UpdateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		org, err := h.orgRepo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondOrgError(c, "Failed to retrieve organization", err)
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
			return
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				apperr.Respond(c, apperr.Validation("name cannot be empty"))
				return
			}
			org.Name = name
		}
		if req.EmailDomain != nil {
			if org.EmailDomain, err = normalizeDomainField(req.EmailDomain); err != nil {
				apperr.Respond(c, err)
				return
			}
		}
		if req.AutoProvision != nil {
			org.AutoProvision = *req.AutoProvision
		}
		if org.AutoProvision && org.EmailDomain == nil {
			apperr.Respond(c, apperr.Validation("auto_provision requires an email_domain"))
			return
		}

		if err := h.orgRepo.Update(c.Request.Context(), org); err != nil {
			respondOrgError(c, "Failed to update organization", err)
			return
		}
		c.JSON(http.StatusOK, org)
	}
}

// @Summary      Delete organization
// @Description  Refused while any user or license belongs to the organization.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Organization ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Organization in use"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Router       /admin/organizations/{id} [delete]
// DeleteOrganizationHandler deletes an organization no user or license refers to
func (h *OrganizationHandlers) DeleteOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("id")

		users, licenses, err := h.orgRepo.CountReferences(c.Request.Context(), orgID)
		if err != nil {
			respondOrgError(c, "Failed to count organization references", err)
			return
		}
		if users > 0 || licenses > 0 {
			apperr.Respond(c, repositories.ErrOrganizationInUse)
			return
		}

		if err := h.orgRepo.Delete(c.Request.Context(), orgID); err != nil {
			respondOrgError(c, "Failed to delete organization", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Organization deleted successfully"})
	}
}

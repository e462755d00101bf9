// Package account implements the sign-in and self-service account endpoints: login,
// admin login, registration with email-domain provisioning, domain lookup for the
// registration form, password change, and the current-user profile.
package account

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/seatdesk/seatdesk/internal/apperr"
	"github.com/seatdesk/seatdesk/internal/auth"
	"github.com/seatdesk/seatdesk/internal/config"
	"github.com/seatdesk/seatdesk/internal/db/models"
	"github.com/seatdesk/seatdesk/internal/db/repositories"
	"github.com/seatdesk/seatdesk/internal/middleware"
	"github.com/seatdesk/seatdesk/internal/validation"
)

var (
	errInvalidCredentials = apperr.Unauthorized("Invalid email or password")
	errAdminRequired      = apperr.Forbidden("Admin access required")
	errNoProvisioningOrg  = apperr.Validation("No organization accepts registrations for this email domain")
	errOrgDomainMismatch  = apperr.Validation("Email domain does not belong to the selected organization")
	errWrongPassword      = apperr.Validation("Current password is incorrect")
)

// Handlers serves the /auth and public /organizations endpoints
type Handlers struct {
	users      *repositories.UserRepository
	orgs       *repositories.OrganizationRepository
	bcryptCost int
}

// NewHandlers creates account handlers over db
func NewHandlers(cfg *config.Config, db *sql.DB) *Handlers {
	return &Handlers{
		users:      repositories.NewUserRepository(db),
		orgs:       repositories.NewOrganizationRepository(db),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Name           string  `json:"name" binding:"notblank,max=255"`
	Email          string  `json:"email" binding:"required,email"`
	Password       string  `json:"password" binding:"required,min=6,max=72"`
	OrganizationID *string `json:"organization_id"`
}

type checkDomainRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6,max=72"`
}

// tokenResponse is returned by every endpoint that issues a session token
func tokenResponse(user *models.User) (gin.H, error) {
	token, expiresAt, err := auth.GenerateJWT(auth.Identity{
		UserID:         user.ID,
		Email:          user.Email,
		OrganizationID: user.OrgID(),
		Role:           user.Role,
		FirstLogin:     user.FirstLogin,
	})
	if err != nil {
		return nil, apperr.Dependency("Failed to issue token", err)
	}
	return gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user":       user,
	}, nil
}

// authenticate returns the user for a matching email and password
func (h *Handlers) authenticate(c *gin.Context, req loginRequest) (*models.User, error) {
	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		return nil, apperr.Dependency("Failed to look up user", err)
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, errInvalidCredentials
	}
	return user, nil
}

// @Summary      Log in
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  loginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "token, expires_at, user"
// @Failure      400  {object}  map[string]interface{}  "Validation error"
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Failure      429  {object}  map[string]interface{}  "Too many requests"
// @Router       /auth/login [post]
// LoginHandler exchanges email and password for a session token
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		user, err := h.authenticate(c, req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		resp, err := tokenResponse(user)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary      Admin log in
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  loginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "token, expires_at, user"
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Failure      403  {object}  map[string]interface{}  "Admin access required"
// @Failure      429  {object}  map[string]interface{}  "Too many requests"
// @Router       /auth/admin/login [post]
// AdminLoginHandler is LoginHandler restricted to admins
func (h *Handlers) AdminLoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		user, err := h.authenticate(c, req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		if !user.IsAdmin() {
			apperr.Respond(c, errAdminRequired)
			return
		}

		resp, err := tokenResponse(user)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// provisioningOrg resolves the organization a new account joins from its email domain.
// When requested is set it must name that same organization.
func (h *Handlers) provisioningOrg(c *gin.Context, email string, requested *string) (*models.Organization, error) {
	domain, err := validation.EmailDomain(email)
	if err != nil {
		return nil, apperr.Validation("Email must be a valid email address")
	}
	org, err := h.orgs.GetByEmailDomain(c.Request.Context(), domain)
	if err != nil {
		return nil, apperr.Dependency("Failed to look up organization", err)
	}
	if org == nil || !org.AutoProvision {
		return nil, errNoProvisioningOrg
	}
	if requested != nil && strings.TrimSpace(*requested) != "" && *requested != org.ID {
		return nil, errOrgDomainMismatch
	}
	return org, nil
}

// @Summary      Register
// @Description  Create an account in the organization that claims the email's domain.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  registerRequest  true  "Account"
// @Success      201  {object}  map[string]interface{}  "token, expires_at, user"
// @Failure      400  {object}  map[string]interface{}  "Validation error"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /auth/register [post]
// RegisterHandler creates a user account and signs it in
func (h *Handlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		org, err := h.provisioningOrg(c, req.Email, req.OrganizationID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		hash, err := auth.HashPassword(req.Password, h.bcryptCost)
		if err != nil {
			if errors.Is(err, auth.ErrPasswordTooShort) {
				apperr.Respond(c, apperr.Validation(err.Error()))
				return
			}
			apperr.Respond(c, apperr.Dependency("Failed to hash password", err))
			return
		}

		orgID := org.ID
		user := &models.User{
			Name:           strings.TrimSpace(req.Name),
			Email:          validation.NormalizeEmail(req.Email),
			PasswordHash:   hash,
			OrganizationID: &orgID,
			Role:           models.RoleUser,
			FirstLogin:     true,
		}
		if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
			if apperr.KindOf(err) == apperr.KindDependency {
				err = apperr.Dependency("Failed to create user", err)
			}
			apperr.Respond(c, err)
			return
		}

		resp, err := tokenResponse(user)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary      Check email domain
// @Description  Whether the email has an account, or which organization would accept its registration.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  checkDomainRequest  true  "Email"
// @Success      200  {object}  map[string]interface{}  "user_exists, organization_id, organization_name"
// @Failure      400  {object}  map[string]interface{}  "Validation error"
// @Failure      404  {object}  map[string]interface{}  "No organization found for this email domain"
// @Router       /auth/check-domain [post]
// CheckDomainHandler tells the sign-in form whether an email belongs to an existing
// account or to an organization that accepts self-registration
func (h *Handlers) CheckDomainHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkDomainRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		existing, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			apperr.Respond(c, apperr.Dependency("Failed to look up user", err))
			return
		}
		if existing != nil {
			c.JSON(http.StatusOK, gin.H{"user_exists": true})
			return
		}

		org, err := h.provisioningOrg(c, req.Email, nil)
		if err != nil {
			if errors.Is(err, errNoProvisioningOrg) {
				c.JSON(http.StatusNotFound, gin.H{"error": "No organization found for this email domain"})
				return
			}
			apperr.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user_exists":       false,
			"organization_id":   org.ID,
			"organization_name": org.Name,
		})
	}
}

// @Summary      Change password
// @Description  Also clears the first-login flag and returns a fresh token.
// @Tags         Authentication
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  changePasswordRequest  true  "Current and new password"
// @Success      200  {object}  map[string]interface{}  "message, token, expires_at, user"
// @Failure      400  {object}  map[string]interface{}  "Wrong current password or weak new password"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /auth/change-password [post]
// ChangePasswordHandler replaces the caller's password, clears the first-login flag,
// and returns a fresh token carrying the updated flag
func (h *Handlers) ChangePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req changePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
			apperr.Respond(c, errWrongPassword)
			return
		}
		if err := validation.ValidatePassword(req.NewPassword); err != nil {
			apperr.Respond(c, apperr.Validation(err.Error()))
			return
		}

		hash, err := auth.HashPassword(req.NewPassword, h.bcryptCost)
		if err != nil {
			apperr.Respond(c, apperr.Dependency("Failed to hash password", err))
			return
		}
		if err := h.users.UpdatePassword(c.Request.Context(), user.ID, hash); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			apperr.Respond(c, apperr.Dependency("Failed to update password", err))
			return
		}

		updated := *user
		updated.PasswordHash = hash
		updated.FirstLogin = false

		resp, err := tokenResponse(&updated)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		resp["message"] = "Password changed successfully"
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary      Current user
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user: models.UserWithOrganization"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /auth/me [get]
// MeHandler returns the authenticated user with its organization name
func (h *Handlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.ContextUserID)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		user, err := h.users.GetUserWithOrganization(c.Request.Context(), userID)
		if err != nil {
			apperr.Respond(c, apperr.Dependency("Failed to load user", err))
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

type publicOrganization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// @Summary      List organizations for registration
// @Tags         Organizations
// @Produce      json
// @Success      200  {array}  publicOrganization
// @Router       /organizations [get]
// ListOrganizationsHandler returns organization names for the registration form
func (h *Handlers) ListOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgs, err := h.orgs.List(c.Request.Context())
		if err != nil {
			apperr.Respond(c, apperr.Dependency("Failed to list organizations", err))
			return
		}

		out := make([]publicOrganization, 0, len(orgs))
		for _, o := range orgs {
			out = append(out, publicOrganization{ID: o.ID, Name: o.Name})
		}
		c.JSON(http.StatusOK, out)
	}
}

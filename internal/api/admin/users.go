// users.go implements admin handlers for listing users and changing their name, role,
// and organization.
package admin

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/seatdesk/seatdesk/internal/apperr"
	"github.com/seatdesk/seatdesk/internal/db/repositories"
	"github.com/seatdesk/seatdesk/internal/middleware"
	"github.com/seatdesk/seatdesk/internal/validation"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	userRepo *repositories.UserRepository
	orgRepo  *repositories.OrganizationRepository
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(db *sql.DB) *UserHandlers {
	return &UserHandlers{
		userRepo: repositories.NewUserRepository(db),
		orgRepo:  repositories.NewOrganizationRepository(db),
	}
}

// UpdateUserRequest is the body of PUT /admin/users/:id. An empty organization_id
// detaches the user from its organization.
type UpdateUserRequest struct {
	Name           *string `json:"name" binding:"omitempty,max=255"`
	Role           *string `json:"role" binding:"omitempty,oneof=user admin"`
	OrganizationID *string `json:"organization_id"`
}

// pagination parses page and per_page (default 1 and 20, per_page capped at 100)
func pagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage, (page - 1) * perPage
}

// @Summary      List users
// @Description  Get a paginated list of users, optionally filtered by organization.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        page             query  int     false  "Page number (default 1)"
// @Param        per_page         query  int     false  "Items per page, max 100 (default 20)"
// @Param        organization_id  query  string  false  "Organization ID"
// @Success      200  {object}  map[string]interface{}  "users: []models.UserWithOrganization, pagination: {page, per_page, total}"
// @Router       /admin/users [get]
// ListUsersHandler lists users with pagination
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		users, total, err := h.userRepo.ListUsers(c.Request.Context(), c.Query("organization_id"), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list users",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users": users,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get user
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "user: models.UserWithOrganization"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /admin/users/{id} [get]
// GetUserHandler retrieves a user with its organization name
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.userRepo.GetUserWithOrganization(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// @Summary      Update user
// @Description  Change a user's name, role, or organization. Admins cannot change their own role.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "User ID"
// @Param        body  body  UpdateUserRequest  true  "Fields to change"
// @Success      200  {object}  map[string]interface{}  "user: models.User"
// @Failure      400  {object}  map[string]interface{}  "Validation error or unknown organization"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /admin/users/{id} [put]
// UpdateUserHandler changes a user's name, role, or organization. Admins cannot
// remove their own admin role.
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}
		ctx := c.Request.Context()

		user, err := h.userRepo.GetUserByID(ctx, c.Param("id"))
		if err != nil {
			apperr.Respond(c, apperr.Dependency("Failed to retrieve user", err))
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				apperr.Respond(c, apperr.Validation("name cannot be empty"))
				return
			}
			user.Name = name
		}
		if req.Role != nil && *req.Role != user.Role {
			if user.ID == c.GetString(middleware.ContextUserID) {
				apperr.Respond(c, apperr.Validation("You cannot change your own role"))
				return
			}
			user.Role = *req.Role
		}
		if req.OrganizationID != nil {
			orgID := strings.TrimSpace(*req.OrganizationID)
			if orgID == "" {
				user.OrganizationID = nil
			} else {
				org, err := h.orgRepo.GetByID(ctx, orgID)
				if err != nil {
					apperr.Respond(c, apperr.Dependency("Failed to retrieve organization", err))
					return
				}
				if org == nil {
					apperr.Respond(c, repositories.ErrOrganizationMissing)
					return
				}
				user.OrganizationID = &org.ID
			}
		}

		if err := h.userRepo.UpdateUser(ctx, user); err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			case apperr.KindOf(err) != apperr.KindDependency:
				apperr.Respond(c, err)
			default:
				apperr.Respond(c, apperr.Dependency("Failed to update user", err))
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

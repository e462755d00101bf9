// Package middleware (rbac.go) implements role and scope authorization plus the
// first-login gate.
//
// Scopes are derived from the stored role on every request rather than embedded in the
// JWT, so a role change takes effect on the next request.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seatdesk/seatdesk/internal/auth"
)

func scopesFrom(c *gin.Context) ([]string, bool) {
	scopesVal, exists := c.Get(ContextScopes)
	if !exists {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Insufficient permissions",
		})
		return nil, false
	}
	userScopes, ok := scopesVal.([]string)
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Invalid scopes format",
		})
		return nil, false
	}
	return userScopes, true
}

// RequireScope checks if authenticated user has the required scope
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := scopesFrom(c)
		if !ok {
			return
		}
		if !auth.HasScope(userScopes, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(scope),
			})
			return
		}
		c.Next()
	}
}

// RequireAnyScope checks if authenticated user has at least one of the required scopes
func RequireAnyScope(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := scopesFrom(c)
		if !ok {
			return
		}
		if !auth.HasAnyScope(userScopes, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing required scope",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin allows only the admin role
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}
		if !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			return
		}
		c.Next()
	}
}

// RequirePasswordChanged blocks users who still have to replace their initial password
func RequirePasswordChanged() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := CurrentUser(c); user != nil && user.FirstLogin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Password change required",
			})
			return
		}
		c.Next()
	}
}

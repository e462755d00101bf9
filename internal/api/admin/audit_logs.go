package admin

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seatdesk/seatdesk/internal/api/loans"
	"github.com/seatdesk/seatdesk/internal/db/repositories"
)

// AuditLogHandlers handles audit log browsing endpoints
type AuditLogHandlers struct {
	auditRepo *repositories.AuditRepository
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance
func NewAuditLogHandlers(db *sql.DB) *AuditLogHandlers {
	return &AuditLogHandlers{auditRepo: repositories.NewAuditRepository(db)}
}

func optionalQuery(c *gin.Context, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

func optionalTime(c *gin.Context, key string, endOfDay bool) (*time.Time, bool) {
	t, err := loans.ParseLoanTime(c.Query(key), endOfDay)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC3339 or YYYY-MM-DD"})
		return nil, false
	}
	return t, true
}

// @Summary      List audit logs
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        user_id          query  string  false  "Actor user ID"
// @Param        organization_id  query  string  false  "Organization ID"
// @Param        action           query  string  false  "Action, e.g. loan.checkout"
// @Param        resource_type    query  string  false  "Resource type"
// @Param        start_date       query  string  false  "Earliest entry (RFC3339 or YYYY-MM-DD)"
// @Param        end_date         query  string  false  "Latest entry (RFC3339 or YYYY-MM-DD)"
// @Param        page             query  int     false  "Page number (default 1)"
// @Param        per_page         query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "logs: []models.AuditLog, pagination: {page, per_page, total}"
// @Failure      400  {object}  map[string]interface{}  "Invalid date filter"
// @Router       /admin/audit-logs [get]
// ListAuditLogsHandler lists audit entries newest first
func (h *AuditLogHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		filters := repositories.AuditFilters{
			UserID:         optionalQuery(c, "user_id"),
			OrganizationID: optionalQuery(c, "organization_id"),
			Action:         optionalQuery(c, "action"),
			ResourceType:   optionalQuery(c, "resource_type"),
		}
		var ok bool
		if filters.StartDate, ok = optionalTime(c, "start_date", false); !ok {
			return
		}
		if filters.EndDate, ok = optionalTime(c, "end_date", true); !ok {
			return
		}

		logs, total, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list audit logs",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get audit log entry
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Audit log ID"
// @Success      200  {object}  models.AuditLog
// @Failure      404  {object}  map[string]interface{}  "Audit log not found"
// @Router       /admin/audit-logs/{id} [get]
// GetAuditLogHandler retrieves one audit entry
func (h *AuditLogHandlers) GetAuditLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		log, err := h.auditRepo.GetAuditLog(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve audit log",
			})
			return
		}
		if log == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Audit log not found"})
			return
		}
		c.JSON(http.StatusOK, log)
	}
}

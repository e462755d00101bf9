// audit.go provides Gin middleware that records authenticated write operations to the
// audit_logs table and forwards them to any configured audit shippers.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seatdesk/seatdesk/internal/audit"
	"github.com/seatdesk/seatdesk/internal/config"
	"github.com/seatdesk/seatdesk/internal/db/models"
	"github.com/seatdesk/seatdesk/internal/safego"
)

// AuditRecorder persists audit records
type AuditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditMetadataKey holds handler-supplied audit metadata in the gin context
const auditMetadataKey = "audit_metadata"

// AddAuditMetadata attaches key=value to the audit record of the current request.
// Handlers use it for facts only they know, such as the license behind a loan.
func AddAuditMetadata(c *gin.Context, key string, value interface{}) {
	meta, _ := c.Get(auditMetadataKey)
	m, ok := meta.(map[string]interface{})
	if !ok {
		m = map[string]interface{}{}
		c.Set(auditMetadataKey, m)
	}
	m[key] = value
}

type auditRoute struct {
	action       string
	resourceType string
	idParam      string
}

// auditActions names the audited routes by method and route template
var auditActions = map[string]auditRoute{
	"POST /licenses/:id/loan":            {"loan.checkout", "license", "id"},
	"POST /licenses/:id/return":          {"loan.return", "license", "id"},
	"POST /loans/:id/return":             {"loan.return", "loan", "id"},
	"POST /admin/licenses":               {"license.create", "license", ""},
	"PUT /admin/licenses/:id":            {"license.update", "license", "id"},
	"DELETE /admin/licenses/:id":         {"license.delete", "license", "id"},
	"POST /admin/loans/:id/force-return": {"loan.force_return", "loan", "id"},
	"DELETE /admin/loans/:id":            {"loan.purge", "loan", "id"},
	"POST /admin/organizations":          {"organization.create", "organization", ""},
	"PUT /admin/organizations/:id":       {"organization.update", "organization", "id"},
	"DELETE /admin/organizations/:id":    {"organization.delete", "organization", "id"},
	"PUT /admin/users/:id":               {"user.update", "user", "id"},
	"POST /auth/change-password":         {"user.change_password", "user", ""},
}

// describe returns the audit action, resource type, and resource ID for a request
func describe(c *gin.Context) (string, string, string) {
	if r, ok := auditActions[c.Request.Method+" "+c.FullPath()]; ok {
		var id string
		if r.idParam != "" {
			id = c.Param(r.idParam)
		}
		return r.action, r.resourceType, id
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	resource := ""
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/admin"), "/") {
		if seg != "" && !strings.HasPrefix(seg, ":") {
			resource = strings.TrimSuffix(seg, "s")
			break
		}
	}
	return c.Request.Method + " " + path, resource, c.Param("id")
}

// AuditMiddleware records authenticated actions. Successful writes are always recorded;
// reads and failed requests follow cfg. recorder and shipper may each be nil.
func AuditMiddleware(recorder AuditRecorder, shipper audit.Shipper, cfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodOptions {
			return
		}
		userID := c.GetString(ContextUserID)
		if userID == "" {
			return
		}

		isReadOp := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead
		isFailed := c.Writer.Status() >= 400
		if isReadOp && (cfg == nil || !cfg.LogReadOperations) {
			return
		}
		if isFailed && (cfg == nil || !cfg.LogFailedRequests) {
			return
		}

		action, resourceType, resourceID := describe(c)
		status := c.Writer.Status()
		ip := c.ClientIP()
		orgID := c.GetString(ContextOrganizationID)
		authMethod := c.GetString(ContextAuthMethod)
		metadata := map[string]interface{}{
			"status_code": status,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
		}
		if rid := c.GetString(RequestIDKey); rid != "" {
			metadata["request_id"] = rid
		}
		if extra, ok := c.Get(auditMetadataKey); ok {
			for k, v := range extra.(map[string]interface{}) {
				if _, reserved := metadata[k]; !reserved {
					metadata[k] = v
				}
			}
		}

		entry := &models.AuditLog{
			UserID:    &userID,
			Action:    action,
			IPAddress: &ip,
			Metadata:  metadata,
			CreatedAt: time.Now().UTC(),
		}
		if orgID != "" {
			entry.OrganizationID = &orgID
		}
		if resourceType != "" {
			entry.ResourceType = &resourceType
		}
		if resourceID != "" {
			entry.ResourceID = &resourceID
		}

		safego.Go("audit", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if recorder != nil {
				if err := recorder.CreateAuditLog(ctx, entry); err != nil {
					slog.Error("failed to write audit log", "action", action, "error", err)
				}
			}
			if shipper != nil {
				err := shipper.Ship(ctx, &audit.LogEntry{
					Timestamp:      entry.CreatedAt,
					Action:         action,
					UserID:         userID,
					OrganizationID: orgID,
					ResourceType:   resourceType,
					ResourceID:     resourceID,
					IPAddress:      ip,
					AuthMethod:     authMethod,
					StatusCode:     status,
					Metadata:       metadata,
				})
				if err != nil {
					slog.Error("failed to ship audit log", "action", action, "error", err)
				}
			}
		})
	}
}

package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

var auditCols = []string{
	"id", "user_id", "organization_id", "action", "resource_type", "resource_id",
	"metadata", "ip_address", "created_at",
}

func sampleAuditRows() *sqlmock.Rows {
	return sqlmock.NewRows(auditCols).
		AddRow("log-1", "user-1", "org-1", "loan.checkout", "license", "lic-1",
			[]byte(`{"status_code":201}`), "10.0.0.1", time.Now())
}

func newAuditRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewAuditLogHandlers(db)

	r := gin.New()
	r.GET("/audit-logs", h.ListAuditLogsHandler())
	r.GET("/audit-logs/:id", h.GetAuditLogHandler())
	return mock, r
}

// ---------------------------------------------------------------------------
// ListAuditLogsHandler
// ---------------------------------------------------------------------------

func TestListAuditLogs_Filters(t *testing.T) {
	mock, r := newAuditRouter(t)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs WHERE action = \\$1 AND created_at >= \\$2 AND created_at <= \\$3").
		WithArgs("loan.checkout", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM audit_logs WHERE.*ORDER BY created_at DESC LIMIT \\$4 OFFSET \\$5").
		WithArgs("loan.checkout", start, end, 20, 0).
		WillReturnRows(sampleAuditRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET",
		"/audit-logs?action=loan.checkout&start_date=2026-03-01&end_date=2026-03-10", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	logs, _ := resp["logs"].([]interface{})
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
	entry, _ := logs[0].(map[string]interface{})
	meta, _ := entry["metadata"].(map[string]interface{})
	if meta["status_code"] != float64(201) {
		t.Errorf("metadata = %v", entry["metadata"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListAuditLogs_BadDate(t *testing.T) {
	_, r := newAuditRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit-logs?start_date=yesterday", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListAuditLogs_DBError(t *testing.T) {
	mock, r := newAuditRouter(t)

	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit-logs", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GetAuditLogHandler
// ---------------------------------------------------------------------------

func TestGetAuditLog(t *testing.T) {
	mock, r := newAuditRouter(t)

	mock.ExpectQuery("SELECT.*FROM audit_logs WHERE id").
		WithArgs("log-1").
		WillReturnRows(sampleAuditRows())
	mock.ExpectQuery("SELECT.*FROM audit_logs WHERE id").
		WithArgs("log-9").
		WillReturnRows(sqlmock.NewRows(auditCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit-logs/log-1", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if getJSON(w)["action"] != "loan.checkout" {
		t.Errorf("body = %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit-logs/log-9", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

package repositories

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/seatdesk/seatdesk/internal/db/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var auditCols = []string{
	"id", "user_id", "organization_id", "action",
	"resource_type", "resource_id", "metadata", "ip_address", "created_at",
}

var auditAt = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func newAuditRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAuditRepository(db), mock
}

func strPtr(s string) *string { return &s }

// checkoutRow is what the audit middleware stores for a successful checkout
func checkoutRow() *sqlmock.Rows {
	return sqlmock.NewRows(auditCols).
		AddRow("log-1", "user-1", "org-1", "loan.checkout", "license", "lic-1",
			[]byte(`{"loan_id":"loan-1","status_code":201}`), "10.0.0.1", auditAt)
}

// ---------------------------------------------------------------------------
// CreateAuditLog
// ---------------------------------------------------------------------------

func TestCreateAuditLog_Checkout(t *testing.T) {
	repo, mock := newAuditRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs (" + auditColumns + ")")).
		WithArgs(sqlmock.AnyArg(), "user-1", "org-1", "loan.checkout", "license", "lic-1",
			[]byte(`{"loan_id":"loan-1","status_code":201}`), "10.0.0.1", auditAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.AuditLog{
		UserID:         strPtr("user-1"),
		OrganizationID: strPtr("org-1"),
		Action:         "loan.checkout",
		ResourceType:   strPtr("license"),
		ResourceID:     strPtr("lic-1"),
		Metadata:       map[string]interface{}{"status_code": 201, "loan_id": "loan-1"},
		IPAddress:      strPtr("10.0.0.1"),
		CreatedAt:      auditAt,
	}
	if err := repo.CreateAuditLog(context.Background(), entry); err != nil {
		t.Fatalf("CreateAuditLog: %v", err)
	}
	if entry.ID == "" {
		t.Error("ID was not assigned")
	}
	if !entry.CreatedAt.Equal(auditAt) {
		t.Errorf("CreatedAt = %v, want the middleware's timestamp", entry.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateAuditLog_ForceReturnByAdminWithoutOrganization(t *testing.T) {
	repo, mock := newAuditRepo(t)

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), "admin-1", nil, "loan.force_return", "loan", "loan-5",
			[]byte(`{"borrower_id":"user-7","license_id":"lic-3","status_code":200}`), "10.0.0.2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.AuditLog{
		UserID:       strPtr("admin-1"),
		Action:       "loan.force_return",
		ResourceType: strPtr("loan"),
		ResourceID:   strPtr("loan-5"),
		Metadata: map[string]interface{}{
			"status_code": 200,
			"license_id":  "lic-3",
			"borrower_id": "user-7",
		},
		IPAddress: strPtr("10.0.0.2"),
	}
	if err := repo.CreateAuditLog(context.Background(), entry); err != nil {
		t.Fatalf("CreateAuditLog: %v", err)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped when the caller left it empty")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateAuditLog_NoMetadataStoresNull(t *testing.T) {
	repo, mock := newAuditRepo(t)

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), "user-1", "org-1", "user.change_password", "user", nil,
			[]byte(nil), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateAuditLog(context.Background(), &models.AuditLog{
		UserID:         strPtr("user-1"),
		OrganizationID: strPtr("org-1"),
		Action:         "user.change_password",
		ResourceType:   strPtr("user"),
	})
	if err != nil {
		t.Fatalf("CreateAuditLog: %v", err)
	}
}

func TestCreateAuditLog_DBError(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errDB)

	err := repo.CreateAuditLog(context.Background(), &models.AuditLog{Action: "loan.return"})
	if err == nil {
		t.Fatal("expected error")
	}
}

// ---------------------------------------------------------------------------
// ListAuditLogs
// ---------------------------------------------------------------------------

func TestListAuditLogs_FilterBuilder(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	endOfDay := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name      string
		filters   AuditFilters
		limit     int
		offset    int
		where     string
		whereArgs []interface{}
		pageSQL   string
	}{
		{
			name:    "no filters",
			limit:   20,
			where:   "",
			pageSQL: " ORDER BY created_at DESC LIMIT $1 OFFSET $2",
		},
		{
			name:      "checkout actions",
			filters:   AuditFilters{Action: strPtr("loan.checkout"), ResourceType: strPtr("license")},
			limit:     50,
			offset:    100,
			where:     " WHERE action = $1 AND resource_type = $2",
			whereArgs: []interface{}{"loan.checkout", "license"},
			pageSQL:   " ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		},
		{
			name:      "actor within organization",
			filters:   AuditFilters{UserID: strPtr("admin-1"), OrganizationID: strPtr("org-1")},
			limit:     20,
			where:     " WHERE user_id = $1 AND organization_id = $2",
			whereArgs: []interface{}{"admin-1", "org-1"},
			pageSQL:   " ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		},
		{
			name:      "date range is inclusive of the end of day",
			filters:   AuditFilters{StartDate: &start, EndDate: &endOfDay},
			limit:     20,
			where:     " WHERE created_at >= $1 AND created_at <= $2",
			whereArgs: []interface{}{start, endOfDay},
			pageSQL:   " ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		},
		{
			name: "end date only",
			filters: AuditFilters{
				Action:  strPtr("loan.force_return"),
				EndDate: &endOfDay,
			},
			limit:     10,
			offset:    10,
			where:     " WHERE action = $1 AND created_at <= $2",
			whereArgs: []interface{}{"loan.force_return", endOfDay},
			pageSQL:   " ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		},
		{
			name: "every filter",
			filters: AuditFilters{
				UserID:         strPtr("user-1"),
				OrganizationID: strPtr("org-1"),
				Action:         strPtr("loan.checkout"),
				ResourceType:   strPtr("license"),
				StartDate:      &start,
				EndDate:        &endOfDay,
			},
			limit: 100,
			where: " WHERE user_id = $1 AND organization_id = $2 AND action = $3 AND resource_type = $4" +
				" AND created_at >= $5 AND created_at <= $6",
			whereArgs: []interface{}{"user-1", "org-1", "loan.checkout", "license", start, endOfDay},
			pageSQL:   " ORDER BY created_at DESC LIMIT $7 OFFSET $8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newAuditRepo(t)

			countArgs := make([]driver.Value, 0, len(tt.whereArgs))
			for _, a := range tt.whereArgs {
				countArgs = append(countArgs, a)
			}
			pageArgs := append(append([]driver.Value{}, countArgs...), tt.limit, tt.offset)

			mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs" + tt.where)).
				WithArgs(countArgs...).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(137))
			mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs" + tt.where + tt.pageSQL)).
				WithArgs(pageArgs...).
				WillReturnRows(checkoutRow())

			logs, total, err := repo.ListAuditLogs(context.Background(), tt.filters, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("ListAuditLogs: %v", err)
			}
			if total != 137 {
				t.Errorf("total = %d, want 137", total)
			}
			if len(logs) != 1 {
				t.Fatalf("logs = %d, want 1", len(logs))
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestListAuditLogs_DecodesMetadata(t *testing.T) {
	repo, mock := newAuditRepo(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("FROM audit_logs ORDER BY").
		WillReturnRows(checkoutRow().
			AddRow("log-2", "admin-1", nil, "loan.force_return", "loan", "loan-5",
				[]byte(`{"license_id":"lic-3","status_code":200}`), "10.0.0.2", auditAt.Add(-time.Hour)))

	logs, _, err := repo.ListAuditLogs(context.Background(), AuditFilters{}, 20, 0)
	if err != nil {
		t.Fatalf("ListAuditLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	if logs[0].Metadata["loan_id"] != "loan-1" {
		t.Errorf("checkout metadata = %v", logs[0].Metadata)
	}
	force := logs[1]
	if force.OrganizationID != nil {
		t.Errorf("OrganizationID = %v, want nil", *force.OrganizationID)
	}
	if force.Metadata["license_id"] != "lic-3" || force.Metadata["status_code"] != float64(200) {
		t.Errorf("force-return metadata = %v", force.Metadata)
	}
}

func TestListAuditLogs_EmptyPage(t *testing.T) {
	repo, mock := newAuditRepo(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("LIMIT \\$1 OFFSET \\$2").
		WithArgs(20, 40).
		WillReturnRows(sqlmock.NewRows(auditCols))

	logs, total, err := repo.ListAuditLogs(context.Background(), AuditFilters{}, 20, 40)
	if err != nil {
		t.Fatalf("ListAuditLogs: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if logs == nil || len(logs) != 0 {
		t.Errorf("logs = %v, want an empty non-nil slice", logs)
	}
}

func TestListAuditLogs_Errors(t *testing.T) {
	t.Run("count fails", func(t *testing.T) {
		repo, mock := newAuditRepo(t)
		mock.ExpectQuery("SELECT COUNT").WillReturnError(errDB)

		if _, _, err := repo.ListAuditLogs(context.Background(), AuditFilters{}, 20, 0); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("page query fails", func(t *testing.T) {
		repo, mock := newAuditRepo(t)
		mock.ExpectQuery("SELECT COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("ORDER BY created_at DESC").WillReturnError(errDB)

		if _, _, err := repo.ListAuditLogs(context.Background(), AuditFilters{}, 20, 0); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("corrupt metadata", func(t *testing.T) {
		repo, mock := newAuditRepo(t)
		mock.ExpectQuery("SELECT COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("ORDER BY created_at DESC").
			WillReturnRows(sqlmock.NewRows(auditCols).
				AddRow("log-1", "user-1", "org-1", "loan.return", "loan", "loan-1",
					[]byte(`{not json`), "10.0.0.1", auditAt))

		if _, _, err := repo.ListAuditLogs(context.Background(), AuditFilters{}, 20, 0); err == nil {
			t.Fatal("expected decode error")
		}
	})
}

// ---------------------------------------------------------------------------
// GetAuditLog
// ---------------------------------------------------------------------------

func TestGetAuditLog(t *testing.T) {
	repo, mock := newAuditRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE id = $1")).
		WithArgs("log-1").
		WillReturnRows(checkoutRow())
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE id = $1")).
		WithArgs("log-404").
		WillReturnRows(sqlmock.NewRows(auditCols))
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE id = $1")).
		WithArgs("log-err").
		WillReturnError(errDB)

	log, err := repo.GetAuditLog(context.Background(), "log-1")
	if err != nil {
		t.Fatalf("GetAuditLog: %v", err)
	}
	if log == nil || log.Action != "loan.checkout" || *log.ResourceID != "lic-1" {
		t.Errorf("log = %+v", log)
	}

	log, err = repo.GetAuditLog(context.Background(), "log-404")
	if err != nil || log != nil {
		t.Errorf("missing log = %v, %v; want nil, nil", log, err)
	}

	if _, err := repo.GetAuditLog(context.Background(), "log-err"); err == nil {
		t.Error("expected error")
	}
}

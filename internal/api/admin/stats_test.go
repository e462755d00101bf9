package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// ---------------------------------------------------------------------------
// Router helper
// ---------------------------------------------------------------------------

var statsNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newStatsRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	h := NewStatsHandler(sqlxDB)
	h.now = func() time.Time { return statsNow }

	r := gin.New()
	r.GET("/stats/dashboard", h.GetDashboardStats)
	return mock, r
}

func expectCounts(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT COUNT.*FROM organizations").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT COUNT.*FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(120))
	mock.ExpectQuery("SELECT COUNT.*SUM\\(total\\).*FROM licenses").
		WillReturnRows(sqlmock.NewRows([]string{"count", "total", "available"}).AddRow(4, 40, 31))
}

// ---------------------------------------------------------------------------
// GetDashboardStats tests
// ---------------------------------------------------------------------------

func TestGetDashboardStats_Success(t *testing.T) {
	mock, r := newStatsRouter(t)

	expectCounts(mock)
	mock.ExpectQuery("FILTER.*FROM loans").
		WithArgs(statsNow, statsNow.AddDate(0, 0, -30)).
		WillReturnRows(sqlmock.NewRows([]string{"active", "overdue", "recent"}).AddRow(9, 2, 17))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/stats/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["organizations"] != float64(3) || resp["users"] != float64(120) || resp["licenses"] != float64(4) {
		t.Errorf("counts = %v", resp)
	}
	seats, _ := resp["seats"].(map[string]interface{})
	if seats["total"] != float64(40) || seats["available"] != float64(31) || seats["in_use"] != float64(9) {
		t.Errorf("seats = %v", seats)
	}
	loans, _ := resp["loans"].(map[string]interface{})
	if loans["active_loans"] != float64(9) || loans["overdue_loans"] != float64(2) || loans["checkouts_last_30_days"] != float64(17) {
		t.Errorf("loans = %v", loans)
	}
}

func TestGetDashboardStats_OrganizationCountFails(t *testing.T) {
	mock, r := newStatsRouter(t)

	mock.ExpectQuery("SELECT COUNT.*FROM organizations").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/stats/dashboard", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestGetDashboardStats_LoanCountFails(t *testing.T) {
	mock, r := newStatsRouter(t)

	expectCounts(mock)
	mock.ExpectQuery("FILTER.*FROM loans").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/stats/dashboard", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if got := getJSON(w)["error"]; got != "Failed to count loans" {
		t.Errorf("error = %v", got)
	}
}

package loans

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatdesk/seatdesk/internal/db/models"
	"github.com/seatdesk/seatdesk/internal/ledger"
	"github.com/seatdesk/seatdesk/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var fixedNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func member(id, org string) *models.User {
	u := &models.User{ID: id, Name: id, Email: id + "@example.edu", Role: models.RoleUser}
	if org != "" {
		u.OrganizationID = &org
	}
	return u
}

type fixture struct {
	ledger *ledger.Ledger
	store  *ledger.MemoryStore
	router func(user *models.User) *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	l := ledger.New(store).WithClock(func() time.Time { return fixedNow })
	h := NewHandlers(l)

	return &fixture{
		ledger: l,
		store:  store,
		router: func(user *models.User) *gin.Engine {
			r := gin.New()
			r.Use(func(c *gin.Context) {
				if user != nil {
					c.Set(middleware.ContextUser, user)
					c.Set(middleware.ContextUserID, user.ID)
				}
				c.Next()
			})
			r.GET("/licenses", h.ListLicensesHandler())
			r.POST("/licenses/:id/loan", h.CheckoutHandler())
			r.POST("/licenses/:id/return", h.ReturnLicenseHandler())
			r.POST("/loans/:id/return", h.ReturnLoanHandler())
			r.GET("/loans", h.ListLoansHandler())
			return r
		},
	}
}

func (f *fixture) license(t *testing.T, org string, total int) *models.License {
	t.Helper()
	lic, err := f.ledger.CreateLicense(context.Background(), ledger.NewLicense{
		OrganizationID: org, Name: "Copilot", Total: total, MaxLoanDays: 30,
	})
	require.NoError(t, err)
	return lic
}

func (f *fixture) available(t *testing.T, id string) int {
	t.Helper()
	lic, err := f.ledger.License(context.Background(), id, "")
	require.NoError(t, err)
	return lic.Available
}

func do(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type checkoutBody struct {
	Loan models.Loan `json:"loan"`
}

// ---------------------------------------------------------------------------
// ParseLoanTime
// ---------------------------------------------------------------------------

func TestParseLoanTime(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		endOfDay bool
		want     *time.Time
		wantErr  bool
	}{
		{"empty", "", false, nil, false},
		{"rfc3339", "2026-03-12T10:00:00Z", false, ptr(time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)), false},
		{"date start", "2026-03-12", false, ptr(time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)), false},
		{"date end", "2026-03-12", true, ptr(time.Date(2026, 3, 12, 23, 59, 59, 0, time.UTC)), false},
		{"garbage", "next tuesday", false, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLoanTime(tt.in, tt.endOfDay)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %v, want %v", got, tt.want)
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }

// ---------------------------------------------------------------------------
// GET /licenses
// ---------------------------------------------------------------------------

func TestListLicenses_ScopedToOrganization(t *testing.T) {
	f := newFixture(t)
	mine := f.license(t, "org-1", 2)
	f.license(t, "org-2", 5)

	w := do(f.router(member("ada", "org-1")), http.MethodGet, "/licenses", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var out []models.License
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, mine.ID, out[0].ID)
	assert.Equal(t, 2, out[0].Available)
	assert.Equal(t, 2, out[0].Total)
}

func TestListLicenses_NoOrganization(t *testing.T) {
	f := newFixture(t)
	f.license(t, "org-1", 2)

	w := do(f.router(member("ada", "")), http.MethodGet, "/licenses", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestListLicenses_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	w := do(f.router(nil), http.MethodGet, "/licenses", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// ---------------------------------------------------------------------------
// POST /licenses/:id/loan
// ---------------------------------------------------------------------------

func TestCheckout_NoBodyDefaults(t *testing.T) {
	f := newFixture(t)
	lic := f.license(t, "org-1", 2)

	w := do(f.router(member("ada", "org-1")), http.MethodPost, "/licenses/"+lic.ID+"/loan", nil)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var body checkoutBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.LoanStatusActive, body.Loan.Status)
	assert.True(t, fixedNow.AddDate(0, 0, 30).Equal(body.Loan.DueDate))
	assert.Equal(t, 1, f.available(t, lic.ID))
}

func TestCheckout_DateOnlyRange(t *testing.T) {
	f := newFixture(t)
	lic := f.license(t, "org-1", 2)

	w := do(f.router(member("ada", "org-1")), http.MethodPost, "/licenses/"+lic.ID+"/loan",
		gin.H{"start": "2026-03-12", "end": "2026-03-20"})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var body checkoutBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC).Equal(body.Loan.LoanDate))
	assert.True(t, time.Date(2026, 3, 20, 23, 59, 59, 0, time.UTC).Equal(body.Loan.DueDate))
}

func TestCheckout_Errors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, f *fixture, lic *models.License)
		user       *models.User
		licenseID  string
		body       interface{}
		wantStatus int
		wantError  string
	}{
		{
			name:       "start in the past",
			user:       member("ada", "org-1"),
			body:       gin.H{"start": "2026-03-01"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Start date cannot be in the past",
		},
		{
			name:       "end before start",
			user:       member("ada", "org-1"),
			body:       gin.H{"start": "2026-03-15", "end": "2026-03-12"},
			wantStatus: http.StatusBadRequest,
			wantError:  "End date must not be before start date",
		},
		{
			name:       "loan too long",
			user:       member("ada", "org-1"),
			body:       gin.H{"end": "2026-05-01"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Loan period exceeds the maximum for this license",
		},
		{
			name:       "malformed date",
			user:       member("ada", "org-1"),
			body:       gin.H{"start": "soon"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown license",
			user:       member("ada", "org-1"),
			licenseID:  "missing",
			wantStatus: http.StatusNotFound,
			wantError:  "License not found",
		},
		{
			name:       "other organization's license",
			user:       member("ada", "org-2"),
			wantStatus: http.StatusNotFound,
			wantError:  "License not found",
		},
		{
			name: "already checked out",
			setup: func(t *testing.T, f *fixture, lic *models.License) {
				_, err := f.ledger.Checkout(context.Background(), ledger.CheckoutRequest{LicenseID: lic.ID, UserID: "ada"})
				require.NoError(t, err)
			},
			user:       member("ada", "org-1"),
			wantStatus: http.StatusConflict,
			wantError:  "You already have an active loan for this license",
		},
		{
			name: "no seats",
			setup: func(t *testing.T, f *fixture, lic *models.License) {
				for _, u := range []string{"bob", "cy"} {
					_, err := f.ledger.Checkout(context.Background(), ledger.CheckoutRequest{LicenseID: lic.ID, UserID: u})
					require.NoError(t, err)
				}
			},
			user:       member("ada", "org-1"),
			wantStatus: http.StatusConflict,
			wantError:  "No seats available for this license",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			lic := f.license(t, "org-1", 2)
			if tt.setup != nil {
				tt.setup(t, f, lic)
			}
			before := f.available(t, lic.ID)
			id := tt.licenseID
			if id == "" {
				id = lic.ID
			}

			w := do(f.router(tt.user), http.MethodPost, "/licenses/"+id+"/loan", tt.body)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantError != "" {
				assert.JSONEq(t, `{"error":"`+tt.wantError+`"}`, w.Body.String())
			}
			assert.Equal(t, before, f.available(t, lic.ID), "failed checkout must not move seats")
		})
	}
}

func TestCheckout_AdminUnscoped(t *testing.T) {
	f := newFixture(t)
	lic := f.license(t, "org-1", 1)
	admin := member("root", "")
	admin.Role = models.RoleAdmin

	w := do(f.router(admin), http.MethodPost, "/licenses/"+lic.ID+"/loan", nil)

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

func TestReturnLoan_ByID(t *testing.T) {
	f := newFixture(t)
	lic := f.license(t, "org-1", 1)
	loan, err := f.ledger.Checkout(context.Background(), ledger.CheckoutRequest{LicenseID: lic.ID, UserID: "ada"})
	require.NoError(t, err)

	r := f.router(member("ada", "org-1"))
	w := do(r, http.MethodPost, "/loans/"+loan.ID+"/return", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, f.available(t, lic.ID))

	// A second return finds no active loan and leaves the count alone.
	w = do(r, http.MethodPost, "/loans/"+loan.ID+"/return", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, f.available(t, lic.ID))
}

func TestReturnLoan_NotOwner(t *testing.T) {
	f := newFixture(t)
	lic := f.license(t, "org-1", 1)
	loan, err := f.ledger.Checkout(context.Background(), ledger.CheckoutRequest{LicenseID: lic.ID, UserID: "ada"})
	require.NoError(t, err)

	w := do(f.router(member("bob", "org-1")), http.MethodPost, "/loans/"+loan.ID+"/return", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, f.available(t, lic.ID))
}

func TestReturnLicense_ByPair(t *testing.T) {
	f := newFixture(t)
	lic := f.license(t, "org-1", 1)
	_, err := f.ledger.Checkout(context.Background(), ledger.CheckoutRequest{LicenseID: lic.ID, UserID: "ada"})
	require.NoError(t, err)

	w := do(f.router(member("ada", "org-1")), http.MethodPost, "/licenses/"+lic.ID+"/return", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, f.available(t, lic.ID))
}

// ---------------------------------------------------------------------------
// GET /loans
// ---------------------------------------------------------------------------

func TestListLoans_OwnOnly(t *testing.T) {
	f := newFixture(t)
	lic := f.license(t, "org-1", 3)
	for _, u := range []string{"ada", "bob"} {
		_, err := f.ledger.Checkout(context.Background(), ledger.CheckoutRequest{LicenseID: lic.ID, UserID: u})
		require.NoError(t, err)
	}

	w := do(f.router(member("ada", "org-1")), http.MethodGet, "/loans", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var out []models.LoanDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "ada", out[0].UserID)
	assert.Equal(t, "Copilot", out[0].LicenseName)
	assert.Equal(t, 30, out[0].DaysRemaining)
	assert.False(t, out[0].IsOverdue)
}

func TestListLoans_BadStatus(t *testing.T) {
	f := newFixture(t)
	w := do(f.router(member("ada", "org-1")), http.MethodGet, "/loans?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

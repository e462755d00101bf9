package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/seatdesk/seatdesk/internal/auth"
	"github.com/seatdesk/seatdesk/internal/db/repositories"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var authUserCols = []string{
	"id", "name", "email", "password_hash", "organization_id", "role", "first_login", "created_at", "updated_at",
}

func newUserRepo(t *testing.T) (*repositories.UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewUserRepository(db), mock
}

func userRow(id, role string, firstLogin bool) *sqlmock.Rows {
	return sqlmock.NewRows(authUserCols).
		AddRow(id, "Alice", "alice@example.edu", "$2a$hash", "org-1", role, firstLogin, time.Now(), time.Now())
}

func generateTestJWT(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := auth.GenerateJWT(auth.Identity{UserID: userID, Email: "alice@example.edu", Role: "user"})
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return token
}

// newAuthRouter echoes the identity AuthMiddleware put on the context.
func newAuthRouter(users UserLookup) *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(users))
	r.GET("/", func(c *gin.Context) {
		scopes, _ := c.Get(ContextScopes)
		c.JSON(http.StatusOK, gin.H{
			"user_id":         c.GetString(ContextUserID),
			"organization_id": c.GetString(ContextOrganizationID),
			"role":            c.GetString(ContextRole),
			"scopes":          scopes,
		})
	})
	return r
}

func doAuthRequest(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Header validation
// ---------------------------------------------------------------------------

func TestAuthMiddleware_RejectsMalformedHeaders(t *testing.T) {
	r := newAuthRouter(nil)
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer    "},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doAuthRequest(r, tt.header); w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// JWT path
// ---------------------------------------------------------------------------

func TestAuthMiddleware_ValidToken(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "user", false))

	w := doAuthRequest(newAuthRouter(repo), "Bearer "+generateTestJWT(t, "user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
	}

	var body struct {
		UserID         string   `json:"user_id"`
		OrganizationID string   `json:"organization_id"`
		Role           string   `json:"role"`
		Scopes         []string `json:"scopes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UserID != "user-1" || body.OrganizationID != "org-1" || body.Role != "user" {
		t.Errorf("context = %+v", body)
	}
	if !auth.HasScope(body.Scopes, auth.ScopeLoansCheckout) {
		t.Errorf("scopes = %v, missing loans:checkout", body.Scopes)
	}
}

func TestAuthMiddleware_RoleComesFromDatabase(t *testing.T) {
	repo, mock := newUserRepo(t)
	// Token says "user" but the account has since been promoted.
	mock.ExpectQuery("SELECT.*FROM users").
		WillReturnRows(userRow("user-1", "admin", false))

	w := doAuthRequest(newAuthRouter(repo), "Bearer "+generateTestJWT(t, "user-1"))
	var body struct {
		Role string `json:"role"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Role != "admin" {
		t.Errorf("role = %q, want admin", body.Role)
	}
}

func TestAuthMiddleware_UserDeleted(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users").
		WillReturnRows(sqlmock.NewRows(authUserCols))

	if w := doAuthRequest(newAuthRouter(repo), "Bearer "+generateTestJWT(t, "gone")); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users").
		WillReturnError(errors.New("connection refused"))

	if w := doAuthRequest(newAuthRouter(repo), "Bearer "+generateTestJWT(t, "user-1")); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	token, _, err := auth.GenerateJWTWithTTL(auth.Identity{UserID: "user-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWTWithTTL: %v", err)
	}
	if w := doAuthRequest(newAuthRouter(nil), "Bearer "+token); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

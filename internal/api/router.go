// Package api wires together all HTTP routes for the seatdesk backend.
//
// Route groups:
//   - /auth login, registration, and domain lookup are public and sit behind the
//     stricter auth rate limiter; /auth/me and /auth/change-password need a token.
//   - /licenses and /loans are the member surface. They need a token and are closed
//     until a first-login user has changed their password.
//   - /admin requires the admin role and is closed by the same first-login gate.
//
// Health, readiness, and version endpoints are never rate limited or audited.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/seatdesk/seatdesk/internal/api/account"
	"github.com/seatdesk/seatdesk/internal/api/admin"
	"github.com/seatdesk/seatdesk/internal/api/loans"
	"github.com/seatdesk/seatdesk/internal/audit"
	"github.com/seatdesk/seatdesk/internal/auth"
	"github.com/seatdesk/seatdesk/internal/config"
	"github.com/seatdesk/seatdesk/internal/db/repositories"
	"github.com/seatdesk/seatdesk/internal/jobs"
	"github.com/seatdesk/seatdesk/internal/ledger"
	"github.com/seatdesk/seatdesk/internal/middleware"
	"github.com/seatdesk/seatdesk/internal/validation"
)

// Version is reported by GET /version. Release builds override it with -ldflags.
var Version = "0.1.0"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	reminderJob  *jobs.LoanReminderJob
	rateLimiters []*middleware.MemoryLimiter
	shipper      *audit.MultiShipper
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.reminderJob != nil {
		bg.reminderJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// newLimiter builds the configured rate limit backend. Memory limiters are registered
// with bg so their cleanup goroutines stop on shutdown.
func newLimiter(cfg *config.Config, rdb redis.UniversalClient, rl middleware.RateLimitConfig, prefix string, bg *BackgroundServices) middleware.Limiter {
	if cfg.Security.RateLimiting.Backend == middleware.BackendRedis && rdb != nil {
		return middleware.NewRedisLimiter(rdb, rl, prefix)
	}
	limiter := middleware.NewMemoryLimiter(rl)
	bg.rateLimiters = append(bg.rateLimiters, limiter)
	return limiter
}

// NewRouter creates and configures the Gin router. rdb may be nil; it is required only
// for the redis rate limit backend and is then also checked by /ready.
func NewRouter(cfg *config.Config, db *sql.DB, rdb redis.UniversalClient) (*gin.Engine, *BackgroundServices, error) {
	if err := validation.RegisterBindings(); err != nil {
		return nil, nil, fmt.Errorf("failed to register validators: %w", err)
	}

	router := gin.New()
	bg := &BackgroundServices{}

	sqlxDB := sqlx.NewDb(db, "postgres")
	userRepo := repositories.NewUserRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	loanRepo := repositories.NewLoanRepository(sqlxDB)
	seats := ledger.New(repositories.NewSeatStore(sqlxDB))

	// Loan reminders run on their cron schedule until Shutdown
	reminderJob := jobs.NewLoanReminderJob(loanRepo, jobs.NewSMTPMailer(cfg.Notifications.SMTP), cfg.Notifications.LoanReminder)
	if err := reminderJob.Start(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to start loan reminder job: %w", err)
	}
	bg.reminderJob = reminderJob

	var shipper audit.Shipper
	if cfg.Audit.Enabled {
		ms, err := audit.NewMultiShipper(cfg.Audit.Shippers)
		if err != nil {
			bg.Shutdown()
			return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
		}
		bg.shipper = ms
		if ms.Len() > 0 {
			shipper = ms
		}
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, rdb))
	router.GET("/version", versionHandler())

	accountHandlers := account.NewHandlers(cfg, db)
	loanHandlers := loans.NewHandlers(seats)
	licenseAdmin := admin.NewLicenseHandlers(seats)
	loanAdmin := admin.NewLoanHandlers(seats)
	orgAdmin := admin.NewOrganizationHandlers(db)
	userAdmin := admin.NewUserHandlers(db)
	auditAdmin := admin.NewAuditLogHandlers(db)
	stats := admin.NewStatsHandler(sqlxDB)

	// Every group below shares one general limiter; /auth adds its own stricter one.
	var apiLimit, authLimit gin.HandlerFunc
	if rl := cfg.Security.RateLimiting; rl.Enabled {
		apiLimit = middleware.RateLimitMiddleware(newLimiter(cfg, rdb, middleware.RateLimitConfig{
			RequestsPerMinute: rl.RequestsPerMinute,
			BurstSize:         rl.Burst,
			CleanupInterval:   5 * time.Minute,
		}, "api", bg))
		authLimit = middleware.RateLimitMiddleware(newLimiter(cfg, rdb,
			middleware.AuthRateLimitConfig(rl.AuthRequestsPerMinute), "auth", bg))
	}
	limited := func(g *gin.RouterGroup, h gin.HandlerFunc) {
		if h != nil {
			g.Use(h)
		}
	}

	authn := middleware.AuthMiddleware(userRepo)
	var auditLog gin.HandlerFunc
	if cfg.Audit.Enabled {
		auditLog = middleware.AuditMiddleware(auditRepo, shipper, &cfg.Audit)
	}

	// Public account routes
	publicAuth := router.Group("/auth")
	limited(publicAuth, authLimit)
	{
		publicAuth.POST("/login", accountHandlers.LoginHandler())
		publicAuth.POST("/admin/login", accountHandlers.AdminLoginHandler())
		publicAuth.POST("/register", accountHandlers.RegisterHandler())
		publicAuth.POST("/check-domain", accountHandlers.CheckDomainHandler())
	}
	public := router.Group("")
	limited(public, apiLimit)
	public.GET("/organizations", accountHandlers.ListOrganizationsHandler())

	// Authenticated routes
	authed := router.Group("")
	limited(authed, apiLimit)
	authed.Use(authn)
	if auditLog != nil {
		authed.Use(auditLog)
	}
	{
		authed.GET("/auth/me", accountHandlers.MeHandler())
		authed.POST("/auth/change-password", accountHandlers.ChangePasswordHandler())
	}

	member := authed.Group("")
	member.Use(middleware.RequirePasswordChanged())
	{
		member.GET("/licenses", middleware.RequireScope(auth.ScopeLicensesRead), loanHandlers.ListLicensesHandler())
		member.POST("/licenses/:id/loan", middleware.RequireScope(auth.ScopeLoansCheckout), loanHandlers.CheckoutHandler())
		member.POST("/licenses/:id/return", middleware.RequireScope(auth.ScopeLoansCheckout), loanHandlers.ReturnLicenseHandler())
		member.GET("/loans", middleware.RequireScope(auth.ScopeLoansCheckout), loanHandlers.ListLoansHandler())
		member.POST("/loans/:id/return", middleware.RequireScope(auth.ScopeLoansCheckout), loanHandlers.ReturnLoanHandler())
	}

	adminGroup := authed.Group("/admin")
	adminGroup.Use(middleware.RequireAdmin(), middleware.RequirePasswordChanged())
	{
		licensesManage := middleware.RequireScope(auth.ScopeLicensesManage)
		adminGroup.GET("/licenses", middleware.RequireScope(auth.ScopeLicensesRead), licenseAdmin.ListLicensesHandler())
		adminGroup.POST("/licenses", licensesManage, licenseAdmin.CreateLicenseHandler())
		adminGroup.GET("/licenses/:id", middleware.RequireScope(auth.ScopeLicensesRead), licenseAdmin.GetLicenseHandler())
		adminGroup.PUT("/licenses/:id", licensesManage, licenseAdmin.UpdateLicenseHandler())
		adminGroup.DELETE("/licenses/:id", licensesManage, licenseAdmin.DeleteLicenseHandler())

		loansRead := middleware.RequireScope(auth.ScopeLoansRead)
		loansManage := middleware.RequireScope(auth.ScopeLoansManage)
		adminGroup.GET("/loans", loansRead, loanAdmin.ListLoansHandler())
		adminGroup.GET("/loans/export", loansRead, loanAdmin.ExportLoansHandler())
		adminGroup.POST("/loans/:id/force-return", loansManage, loanAdmin.ForceReturnHandler())
		adminGroup.DELETE("/loans/:id", loansManage, loanAdmin.PurgeLoanHandler())

		orgsRead := middleware.RequireScope(auth.ScopeOrganizationsRead)
		orgsWrite := middleware.RequireScope(auth.ScopeOrganizationsWrite)
		adminGroup.GET("/organizations", orgsRead, orgAdmin.ListOrganizationsHandler())
		adminGroup.POST("/organizations", orgsWrite, orgAdmin.CreateOrganizationHandler())
		adminGroup.GET("/organizations/:id", orgsRead, orgAdmin.GetOrganizationHandler())
		adminGroup.PUT("/organizations/:id", orgsWrite, orgAdmin.UpdateOrganizationHandler())
		adminGroup.DELETE("/organizations/:id", orgsWrite, orgAdmin.DeleteOrganizationHandler())

		adminGroup.GET("/users", middleware.RequireScope(auth.ScopeUsersRead), userAdmin.ListUsersHandler())
		adminGroup.GET("/users/:id", middleware.RequireScope(auth.ScopeUsersRead), userAdmin.GetUserHandler())
		adminGroup.PUT("/users/:id", middleware.RequireScope(auth.ScopeUsersWrite), userAdmin.UpdateUserHandler())

		adminGroup.GET("/stats/dashboard", middleware.RequireAnyScope(auth.ScopeLicensesRead, auth.ScopeLoansRead), stats.GetDashboardStats)
		adminGroup.GET("/audit-logs", middleware.RequireScope(auth.ScopeAuditRead), auditAdmin.ListAuditLogsHandler())
		adminGroup.GET("/audit-logs/:id", middleware.RequireScope(auth.ScopeAuditRead), auditAdmin.GetAuditLogHandler())
	}

	return router, bg, nil
}

// @Summary      Health check
// @Description  Liveness check. Pings the database.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and, when configured, Redis.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service. Unlike /health it
// also pings Redis, which the shared rate limiter depends on.
func readinessHandler(db *sql.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		checks := gin.H{}

		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "redis not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware logs one structured record per request. The format (json or text)
// follows the handler installed by telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		switch status := c.Writer.Status(); {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		slog.LogAttrs(
			c.Request.Context(),
			level,
			"http request",
			slog.String("service", cfg.Telemetry.ServiceName),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS from security.cors. A "*" origin allows any origin
// without credentials.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:  cfg.Security.CORS.AllowedMethods,
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Disposition", middleware.RequestIDHeader, "Retry-After"},
		MaxAge:        time.Hour,
	}
	if len(corsCfg.AllowMethods) == 0 {
		corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}

	origins := make([]string, 0, len(cfg.Security.CORS.AllowedOrigins))
	for _, o := range cfg.Security.CORS.AllowedOrigins {
		if o == "*" {
			corsCfg.AllowAllOrigins = true
			origins = nil
			break
		}
		origins = append(origins, o)
	}
	if !corsCfg.AllowAllOrigins {
		if len(origins) == 0 {
			// cors.New panics on an empty policy; deny every cross-origin request instead.
			corsCfg.AllowOriginFunc = func(string) bool { return false }
		} else {
			corsCfg.AllowOrigins = origins
			corsCfg.AllowCredentials = true
		}
	}
	return cors.New(corsCfg)
}

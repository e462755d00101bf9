// stats.go implements the admin dashboard summary: organization, user, and license counts,
// seat utilisation, and loan activity.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/seatdesk/seatdesk/internal/db/repositories"
)

// StatsHandler handles stats-related API requests
type StatsHandler struct {
	orgRepo     *repositories.OrganizationRepository
	userRepo    *repositories.UserRepository
	licenseRepo *repositories.LicenseRepository
	loanRepo    *repositories.LoanRepository
	now         func() time.Time
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(database *sqlx.DB) *StatsHandler {
	return &StatsHandler{
		orgRepo:     repositories.NewOrganizationRepository(database.DB),
		userRepo:    repositories.NewUserRepository(database.DB),
		licenseRepo: repositories.NewLicenseRepository(database),
		loanRepo:    repositories.NewLoanRepository(database),
		now:         time.Now,
	}
}

// SeatStats summarises seat utilisation across all license pools
type SeatStats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	InUse     int `json:"in_use"`
}

// DashboardStats represents the response for dashboard statistics
type DashboardStats struct {
	Organizations int                     `json:"organizations"`
	Users         int                     `json:"users"`
	Licenses      int                     `json:"licenses"`
	Seats         SeatStats               `json:"seats"`
	Loans         repositories.LoanCounts `json:"loans"`
	GeneratedAt   time.Time               `json:"generated_at"`
}

// @Summary      Dashboard statistics
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  DashboardStats
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /admin/stats/dashboard [get]
// GetDashboardStats returns counts for the admin dashboard
func (h *StatsHandler) GetDashboardStats(c *gin.Context) {
	ctx := c.Request.Context()
	now := h.now().UTC()

	var stats DashboardStats
	var err error

	if stats.Organizations, err = h.orgRepo.Count(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count organizations"})
		return
	}
	if stats.Users, err = h.userRepo.CountUsers(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count users"})
		return
	}

	licenses, total, available, err := h.licenseRepo.SeatTotals(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count seats"})
		return
	}
	stats.Licenses = licenses
	stats.Seats = SeatStats{Total: total, Available: available, InUse: total - available}

	counts, err := h.loanRepo.Counts(ctx, now, now.AddDate(0, 0, -30))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count loans"})
		return
	}
	stats.Loans = *counts
	stats.GeneratedAt = now

	c.JSON(http.StatusOK, stats)
}

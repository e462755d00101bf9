// Package telemetry provides logging setup and Prometheus metrics for seatdesk.
//
// All metrics are registered against the default Prometheus registry and are served by the
// side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<SEATDESK_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Seat checkout and return outcomes recorded by the ledger
//   - Loan reminder deliveries and the overdue loan gauge
//   - Rate limiter rejections per backend
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
// The path label holds the Gin route template (e.g. /licenses/:id/loan) to keep
// cardinality bounded.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Checkout results recorded in SeatCheckoutsTotal
const (
	CheckoutSuccess         = "success"
	CheckoutNoSeats         = "no_seats"
	CheckoutAlreadyHeld     = "already_checked_out"
	CheckoutInvalidDates    = "invalid_dates"
	CheckoutLicenseNotFound = "not_found"
	CheckoutError           = "error"
)

// Return modes recorded in SeatReturnsTotal
const (
	ReturnSelf  = "self"
	ReturnForce = "force"
)

// Seat ledger metrics.
//
// SeatCheckoutsTotal is a CounterVec with label {result}. A rising no_seats rate means a
// pool is undersized.
//
// Example PromQL queries:
//   - Rejected share:  sum(rate(seat_checkouts_total{result!="success"}[1h])) / sum(rate(seat_checkouts_total[1h]))
//
// SeatReturnsTotal is a CounterVec with label {mode}: self or force.
var (
	SeatCheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_checkouts_total",
			Help: "Total number of seat checkout attempts, by result.",
		},
		[]string{"result"},
	)

	SeatReturnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_returns_total",
			Help: "Total number of successful seat returns, by mode (self or force).",
		},
		[]string{"mode"},
	)
)

// Loan reminder metrics, recorded by the loan reminder job.
//
// LoansOverdue is refreshed on every job run. Alert on loans_overdue > 0 for a day or more
// if overdue seats should be reclaimed.
var (
	LoanRemindersSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loan_reminders_sent_total",
			Help: "Total number of loan due-date reminder emails successfully sent.",
		},
	)

	LoansOverdue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loans_overdue",
			Help: "Number of active loans past their due date at the last reminder run.",
		},
	)
)

// RateLimitRejectionsTotal is a CounterVec with label {backend}: memory or redis.
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by backend.",
	},
	[]string{"backend"},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector.
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <SEATDESK_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples sql.DB pool statistics every interval until ctx is
// cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}

package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// ---------------------------------------------------------------------------
// Metric registration sanity checks. Describe() is used rather than Gather()
// because *Vec metrics with no observed label set are absent from Gather output.
// ---------------------------------------------------------------------------

func TestMetrics_AllRegistered(t *testing.T) {
	type describer interface {
		Describe(chan<- *prometheus.Desc)
	}

	cases := []struct {
		name string
		c    describer
	}{
		{"http_requests_total", HTTPRequestsTotal},
		{"http_request_duration_seconds", HTTPRequestDuration},
		{"seat_checkouts_total", SeatCheckoutsTotal},
		{"seat_returns_total", SeatReturnsTotal},
		{"loan_reminders_sent_total", LoanRemindersSentTotal},
		{"loans_overdue", LoansOverdue},
		{"rate_limit_rejections_total", RateLimitRejectionsTotal},
		{"db_open_connections", DBOpenConnections},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tc.c.Describe(ch)
			close(ch)
			for desc := range ch {
				if strings.Contains(desc.String(), `"`+tc.name+`"`) {
					return
				}
			}
			t.Errorf("metric %q: Describe() returned no descriptor with this fqName", tc.name)
		})
	}
}

func TestMetrics_HTTPRequestsTotal_CanBeIncremented(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "/test", "status": "200"}
	before := counterValue(t, HTTPRequestsTotal, labels)
	HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Inc()
	after := counterValue(t, HTTPRequestsTotal, labels)
	if after-before < 1 {
		t.Errorf("HTTPRequestsTotal.Inc() did not increase counter (before=%.0f after=%.0f)", before, after)
	}
}

func TestMetrics_SeatCheckoutsTotal_ByResult(t *testing.T) {
	before := testutil.ToFloat64(SeatCheckoutsTotal.WithLabelValues(CheckoutNoSeats))
	SeatCheckoutsTotal.WithLabelValues(CheckoutNoSeats).Inc()
	after := testutil.ToFloat64(SeatCheckoutsTotal.WithLabelValues(CheckoutNoSeats))
	if after-before != 1 {
		t.Errorf("seat_checkouts_total{result=no_seats} delta = %.0f, want 1", after-before)
	}
}

func TestMetrics_SeatReturnsTotal_ByMode(t *testing.T) {
	before := counterValue(t, SeatReturnsTotal, prometheus.Labels{"mode": ReturnForce})
	SeatReturnsTotal.WithLabelValues(ReturnForce).Inc()
	after := counterValue(t, SeatReturnsTotal, prometheus.Labels{"mode": ReturnForce})
	if after-before < 1 {
		t.Errorf("SeatReturnsTotal.Inc() did not increase counter")
	}
}

func TestMetrics_LoanRemindersSent_CanBeIncremented(t *testing.T) {
	before := plainCounterValue(t, LoanRemindersSentTotal)
	LoanRemindersSentTotal.Inc()
	after := plainCounterValue(t, LoanRemindersSentTotal)
	if after-before < 1 {
		t.Errorf("LoanRemindersSentTotal.Inc() did not increase counter")
	}
}

func TestMetrics_LoansOverdue_CanBeSet(t *testing.T) {
	LoansOverdue.Set(4)
	if got := testutil.ToFloat64(LoansOverdue); got != 4 {
		t.Errorf("loans_overdue = %.0f, want 4", got)
	}
	LoansOverdue.Set(0)
}

func TestMetrics_DBOpenConnections_CanBeSet(t *testing.T) {
	DBOpenConnections.Set(5)
	DBOpenConnections.Set(0)
}

// ---------------------------------------------------------------------------
// StartDBStatsCollector
// ---------------------------------------------------------------------------

func TestStartDBStatsCollector_StopsOnCancel(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	mock.ExpectPing()

	ctx, cancel := context.WithCancel(context.Background())
	StartDBStatsCollector(ctx, db, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mock.ExpectationsWereMet() == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("collector did not ping the database: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// counterValue reads the current value of a CounterVec for the given label set.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 20)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

// plainCounterValue reads the value of a plain (non-vec) Counter.
func plainCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		return dm.GetCounter().GetValue()
	}
	return 0
}

// labelsMatch returns true when all entries in want appear in got.
func labelsMatch(got []*dto.LabelPair, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range got {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/seatdesk/seatdesk/internal/telemetry"
)

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.POST("/loans/:id/return", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := telemetry.HTTPRequestsTotal.WithLabelValues("POST", "/loans/:id/return", "200")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/loans/"+id+"/return", nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("counter delta = %v, want 3", got)
	}
}

func TestMetricsMiddleware_NoRoute(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())

	counter := telemetry.HTTPRequestsTotal.WithLabelValues("GET", "<no-route>", "404")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/does/not/exist", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("counter delta = %v, want 1", got)
	}
}

func TestMetricsMiddleware_ObservesDuration(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/licenses", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.CollectAndCount(telemetry.HTTPRequestDuration)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/licenses", nil))

	if after := testutil.CollectAndCount(telemetry.HTTPRequestDuration); after < before || after == 0 {
		t.Errorf("histogram series count before=%d after=%d", before, after)
	}
}

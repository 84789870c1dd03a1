package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRun("finalize", "ok", 2*time.Second)
	m.RecordRun("finalize", "ok", time.Second)
	m.RecordRun("dry_run", "conflict", time.Millisecond)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SettlementRuns.WithLabelValues("finalize", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SettlementRuns.WithLabelValues("dry_run", "conflict")))

	m.RecordExclusion("ledger")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SettlementExclusions.WithLabelValues("ledger")))

	m.RecordScale(1400, map[string]float64{"global": 0.975}, map[string]float64{"total": 254})
	assert.Equal(t, 1400.0, testutil.ToFloat64(m.SalesVolume))
	assert.Equal(t, 0.975, testutil.ToFloat64(m.ScaleFactor.WithLabelValues("global")))
	assert.Equal(t, 254.0, testutil.ToFloat64(m.PoolPayout.WithLabelValues("total")))

	m.RecordEvent("rabbitmq", nil)
	m.RecordEvent("rabbitmq", errors.New("channel closed"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("rabbitmq", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("rabbitmq", "error")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRun("persist", "ok", time.Second)
		m.RecordExclusion("direct")
		m.RecordScale(0, nil, nil)
		m.RecordEvent("websocket", nil)
	})
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/commission-settle/:week", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/commission-settle/2024-01-08", nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Equal(t, float64(3), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/commission-settle/:week", "404")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Settlement metrics
	SettlementRuns       *prometheus.CounterVec
	SettlementDuration   *prometheus.HistogramVec
	SettlementExclusions *prometheus.CounterVec
	ScaleFactor          *prometheus.GaugeVec
	PoolPayout           *prometheus.GaugeVec
	SalesVolume          prometheus.Gauge
	EventsPublished      *prometheus.CounterVec
}

// New creates a Metrics instance registered on reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		SettlementRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_settlement_runs_total",
				Help: "Settlement runs by mode and outcome",
			},
			[]string{"mode", "outcome"}, // dry_run, persist, finalize
		),
		SettlementDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "commission_settlement_duration_seconds",
				Help:    "Settlement run duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"mode"},
		),
		SettlementExclusions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_settlement_exclusions_total",
				Help: "Users excluded from a run because of computation errors",
			},
			[]string{"stage"},
		),
		ScaleFactor: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "commission_scale_factor",
				Help: "Scale factor applied in the last run",
			},
			[]string{"pool"}, // direct, binary, override, global
		),
		PoolPayout: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "commission_pool_payout",
				Help: "Scaled payout per pool in the last run",
			},
			[]string{"pool"},
		),
		SalesVolume: factory.NewGauge(prometheus.GaugeOpts{
			Name: "commission_sales_volume",
			Help: "Eligible sales volume of the last run",
		}),
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_events_published_total",
				Help: "Settlement events delivered per sink",
			},
			[]string{"sink", "status"},
		),
	}
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// RecordRun counts a finished run. Safe on a nil receiver.
func (m *Metrics) RecordRun(mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SettlementRuns.WithLabelValues(mode, outcome).Inc()
	m.SettlementDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordExclusion counts one excluded user.
func (m *Metrics) RecordExclusion(stage string) {
	if m == nil {
		return
	}
	m.SettlementExclusions.WithLabelValues(stage).Inc()
}

// RecordScale publishes the factors and payouts of a computed week.
func (m *Metrics) RecordScale(sv float64, factors, payouts map[string]float64) {
	if m == nil {
		return
	}
	m.SalesVolume.Set(sv)
	for pool, f := range factors {
		m.ScaleFactor.WithLabelValues(pool).Set(f)
	}
	for pool, p := range payouts {
		m.PoolPayout.WithLabelValues(pool).Set(p)
	}
}

// RecordEvent counts a delivered or failed settlement event.
func (m *Metrics) RecordEvent(sink string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventsPublished.WithLabelValues(sink, status).Inc()
}

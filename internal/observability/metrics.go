// Package observability exposes Prometheus metrics for the HTTP surface,
// the storage pool, auth, and the realtime bus.
package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every registered Prometheus metric
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	dbConnectionsInUse prometheus.Gauge
	dbConnectionsIdle  prometheus.Gauge
	dbConnectionsMax   prometheus.Gauge

	realtimeConnections      prometheus.Gauge
	realtimeSubscriptions    prometheus.Gauge
	realtimeEventsDispatched *prometheus.CounterVec
	realtimeEventsDropped    *prometheus.CounterVec

	authAttemptsTotal *prometheus.CounterVec

	backupRunsTotal *prometheus.CounterVec

	startedAt time.Time
	uptime    prometheus.GaugeFunc
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics() *Metrics {
	m := &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexabase_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexabase_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path", "status"},
		),
		dbConnectionsInUse: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nexabase_db_connections_in_use",
			Help: "Database connections currently in use",
		}),
		dbConnectionsIdle: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nexabase_db_connections_idle",
			Help: "Idle database connections",
		}),
		dbConnectionsMax: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nexabase_db_connections_max",
			Help: "Maximum database connections",
		}),
		realtimeConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nexabase_realtime_connections",
			Help: "Open WebSocket connections",
		}),
		realtimeSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nexabase_realtime_subscriptions",
			Help: "Registered realtime subscriptions",
		}),
		realtimeEventsDispatched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexabase_realtime_events_dispatched_total",
				Help: "Events consumed by the realtime dispatcher",
			},
			[]string{"collection", "action"},
		),
		realtimeEventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexabase_realtime_events_dropped_total",
				Help: "Events dropped by the realtime bus",
			},
			[]string{"reason"},
		),
		authAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexabase_auth_attempts_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		backupRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexabase_backup_runs_total",
				Help: "Backup runs by outcome",
			},
			[]string{"outcome"},
		),
		startedAt: time.Now(),
	}

	m.uptime = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "nexabase_uptime_seconds",
		Help: "Seconds since process start",
	}, func() float64 {
		return time.Since(m.startedAt).Seconds()
	})

	return m
}

// FiberMiddleware records per-request counters and latency. The route
// pattern, not the raw path, is the label to keep cardinality bounded.
func (m *Metrics) FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Route().Path
		status := strconv.Itoa(c.Response().StatusCode())
		m.httpRequestsTotal.WithLabelValues(c.Method(), path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Method(), path, status).Observe(time.Since(start).Seconds())
		return err
	}
}

// PrometheusHandler serves the /metrics endpoint
func PrometheusHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// UpdatePoolStats refreshes the storage pool gauges
func (m *Metrics) UpdatePoolStats(inUse, idle, max int) {
	m.dbConnectionsInUse.Set(float64(inUse))
	m.dbConnectionsIdle.Set(float64(idle))
	m.dbConnectionsMax.Set(float64(max))
}

// RealtimeConnectionsSet updates the open-connection gauge
func (m *Metrics) RealtimeConnectionsSet(n int) {
	m.realtimeConnections.Set(float64(n))
}

// RealtimeSubscriptionsSet updates the subscription gauge
func (m *Metrics) RealtimeSubscriptionsSet(n int) {
	m.realtimeSubscriptions.Set(float64(n))
}

// RealtimeEventDispatched counts one dispatched event
func (m *Metrics) RealtimeEventDispatched(collection, action string) {
	m.realtimeEventsDispatched.WithLabelValues(collection, action).Inc()
}

// RealtimeEventDropped counts one dropped event
func (m *Metrics) RealtimeEventDropped(reason string) {
	m.realtimeEventsDropped.WithLabelValues(reason).Inc()
}

// AuthAttempt counts a login attempt by outcome
func (m *Metrics) AuthAttempt(outcome string) {
	m.authAttemptsTotal.WithLabelValues(outcome).Inc()
}

// BackupRun counts a backup run by outcome
func (m *Metrics) BackupRun(outcome string) {
	m.backupRunsTotal.WithLabelValues(outcome).Inc()
}

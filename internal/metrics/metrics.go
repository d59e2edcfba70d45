// Package metrics holds the hub's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "capstone_hub"

// Login outcomes.
const (
	LoginSuccess       = "success"
	LoginInvalid       = "invalid"
	LoginNotConfigured = "not_configured"
	LoginRateLimited   = "rate_limited"
)

// Drop outcomes.
const (
	DropPersisted = "persisted"
	DropNoop      = "noop"
	DropFailed    = "failed"
)

// Metrics is a set of collectors bound to its own registry.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	logins      *prometheus.CounterVec
	drops       *prometheus.CounterVec
	dropUpdates prometheus.Histogram
	storeOps    *prometheus.CounterVec
	storeTime   *prometheus.HistogramVec
	boards      prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "board",
			Name:      "drops_total",
			Help:      "Drag-and-drop reorders by outcome.",
		}, []string{"outcome"}),
		dropUpdates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "board",
			Name:      "drop_updates",
			Help:      "Order writes issued per drop.",
			Buckets:   prometheus.LinearBuckets(1, 2, 8),
		}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Material store calls by operation and result.",
		}, []string{"backend", "op", "result"}),
		storeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of material store calls.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"backend", "op"}),
		boards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "board",
			Name:      "open",
			Help:      "Boards currently held in memory.",
		}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.logins,
		m.drops,
		m.dropUpdates,
		m.storeOps,
		m.storeTime,
		m.boards,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one finished request. path should be a route
// template so ids do not explode the label space.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLogin counts a login attempt.
func (m *Metrics) RecordLogin(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

// RecordDrop counts a drop. updates is the number of order writes it issued.
func (m *Metrics) RecordDrop(outcome string, updates int) {
	m.drops.WithLabelValues(outcome).Inc()
	if updates > 0 {
		m.dropUpdates.Observe(float64(updates))
	}
}

// RecordStoreOp records a store call.
func (m *Metrics) RecordStoreOp(backend, op string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeOps.WithLabelValues(backend, op, result).Inc()
	m.storeTime.WithLabelValues(backend, op).Observe(duration.Seconds())
}

// SetOpenBoards reports how many boards are held in memory.
func (m *Metrics) SetOpenBoards(n int) {
	m.boards.Set(float64(n))
}

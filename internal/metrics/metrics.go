// Package metrics exposes Prometheus metrics for batches, rows, enricher
// calls and HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every metric on one registry. A nil *Manager is valid and
// records nothing.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	rows             *prometheus.CounterVec
	batches          *prometheus.CounterVec
	enricherCalls    *prometheus.CounterVec
	enricherDuration *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) { m.namespace = ns }
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(m *Manager) { m.registry = reg }
}

// WithBuckets overrides the duration histogram buckets.
func WithBuckets(b []float64) Option {
	return func(m *Manager) { m.buckets = b }
}

// NewManager creates a manager on its own registry, so several managers can
// coexist in one process.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "venue_enricher",
		buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.init()
	return m
}

func (m *Manager) init() {
	auto := promauto.With(m.registry)

	m.rows = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rows_total",
		Help:      "Rows examined by outcome.",
	}, []string{"outcome"})

	m.batches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "batches_total",
		Help:      "Batches finished by stop reason.",
	}, []string{"reason"})

	m.enricherCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "enricher_calls_total",
		Help:      "Enricher calls by enricher and outcome.",
	}, []string{"enricher", "outcome"})

	m.enricherDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "enricher_duration_seconds",
		Help:      "Enricher call latency including retries.",
		Buckets:   m.buckets,
	}, []string{"enricher"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})
}

// RecordRow counts one row outcome.
func (m *Manager) RecordRow(outcome string) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(outcome).Inc()
}

// RecordBatch counts one finished batch.
func (m *Manager) RecordBatch(reason string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(reason).Inc()
}

// RecordEnricherCall counts one call and observes its duration.
func (m *Manager) RecordEnricherCall(enricher, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.enricherCalls.WithLabelValues(enricher, outcome).Inc()
	m.enricherDuration.WithLabelValues(enricher).Observe(d.Seconds())
}

// RecordHTTP counts one request.
func (m *Manager) RecordHTTP(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Registry returns the registry the metrics live on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Package metrics exposes Prometheus metrics for source runs, reconciliation
// and environment sync.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector of the service.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	checks      *prometheus.CounterVec
	changes     *prometheus.CounterVec
	records     *prometheus.CounterVec
	runErrors   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	syncDocs    *prometheus.CounterVec
	lastRunUnix *prometheus.GaugeVec
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace (default "volleysync").
func WithNamespace(ns string) Option {
	return func(m *Manager) { m.namespace = ns }
}

// WithRegistry registers collectors on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(m *Manager) { m.registry = reg }
}

// New creates and registers all collectors.
func New(opts ...Option) *Manager {
	m := &Manager{namespace: "volleysync"}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	f := promauto.With(m.registry)

	m.checks = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "gate", Name: "checks_total",
		Help: "Change-detection checks per source section.",
	}, []string{"source", "section"})
	m.changes = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "gate", Name: "changes_total",
		Help: "Checks that detected changed content.",
	}, []string{"source", "section"})
	m.records = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "reconcile", Name: "records_total",
		Help: "Reconciled records by outcome.",
	}, []string{"source", "collection", "outcome"})
	m.runErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "run", Name: "errors_total",
		Help: "Failed source runs by error kind.",
	}, []string{"source", "kind"})
	m.runDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "run", Name: "duration_seconds",
		Help:    "Wall time of one source run.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"source"})
	m.lastRunUnix = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "run", Name: "last_timestamp_seconds",
		Help: "Unix time of the last finished run.",
	}, []string{"source"})
	m.syncDocs = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "sync", Name: "documents_total",
		Help: "Documents handled by environment sync.",
	}, []string{"collection", "outcome"})

	m.registry.MustRegister(collectors.NewGoCollector())
	return m
}

// Registry returns the backing registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCheck counts a gate check.
func (m *Manager) ObserveCheck(source, section string, changed bool) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(source, section).Inc()
	if changed {
		m.changes.WithLabelValues(source, section).Inc()
	}
}

// ObserveRecords adds reconcile outcome counts.
func (m *Manager) ObserveRecords(source, collection string, updated, unchanged, notFound, failed int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(source, collection, "updated").Add(float64(updated))
	m.records.WithLabelValues(source, collection, "unchanged").Add(float64(unchanged))
	m.records.WithLabelValues(source, collection, "not_found").Add(float64(notFound))
	m.records.WithLabelValues(source, collection, "failed").Add(float64(failed))
}

// ObserveRun records duration and, when kind is non-empty, an error.
func (m *Manager) ObserveRun(source string, d time.Duration, kind string) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(source).Observe(d.Seconds())
	m.lastRunUnix.WithLabelValues(source).SetToCurrentTime()
	if kind != "" {
		m.runErrors.WithLabelValues(source, kind).Inc()
	}
}

// ObserveSync counts written and skipped documents of one collection.
func (m *Manager) ObserveSync(collection string, written, skipped int) {
	if m == nil {
		return
	}
	m.syncDocs.WithLabelValues(collection, "written").Add(float64(written))
	m.syncDocs.WithLabelValues(collection, "skipped").Add(float64(skipped))
}

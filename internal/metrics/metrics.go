// Package metrics defines and registers all Prometheus metrics used by the
// autokuma service, and serves them together with health probes. Metrics
// share the common "autokuma_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector used by autokuma.
type Metrics struct {
	// TicksTotal counts reconcile ticks by status.
	TicksTotal *prometheus.CounterVec

	// TickDuration observes how long each reconcile tick takes.
	TickDuration prometheus.Histogram

	// EntityOperationsTotal counts create/update/delete/pause/resume RPCs by
	// entity kind and outcome.
	EntityOperationsTotal *prometheus.CounterVec

	// EntitiesDesired tracks the size of the desired set per kind.
	EntitiesDesired *prometheus.GaugeVec

	// SynthesisErrorsTotal counts entities dropped from a tick due to
	// template or parse failures.
	SynthesisErrorsTotal *prometheus.CounterVec

	// SourceBundles tracks the bundles contributed per source kind.
	SourceBundles *prometheus.GaugeVec

	// ConnectionStatus tracks whether the Uptime Kuma session is up.
	ConnectionStatus prometheus.Gauge

	// DeletesPending tracks orphaned entities inside their grace period.
	DeletesPending prometheus.Gauge
}

// NewMetrics creates and registers all collectors. Pass a custom registry in
// tests.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{}

	m.TicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autokuma_ticks_total",
		Help: "Reconcile ticks by status (success, error).",
	}, []string{"status"})

	m.TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "autokuma_tick_duration_seconds",
		Help:    "Duration of reconcile ticks.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	m.EntityOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autokuma_entity_operations_total",
		Help: "Entity RPCs by kind, operation, and outcome.",
	}, []string{"kind", "operation", "status"})

	m.EntitiesDesired = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autokuma_entities_desired",
		Help: "Entities in the desired set per kind.",
	}, []string{"kind"})

	m.SynthesisErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autokuma_synthesis_errors_total",
		Help: "Entities dropped from a tick by failure class.",
	}, []string{"class"})

	m.SourceBundles = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autokuma_source_bundles",
		Help: "Label bundles contributed per source.",
	}, []string{"source"})

	m.ConnectionStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autokuma_connection_status",
		Help: "Whether the Uptime Kuma session is up (1) or down (0).",
	})

	m.DeletesPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autokuma_deletes_pending",
		Help: "Orphaned entities waiting out the deletion grace period.",
	})

	registerer.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.EntityOperationsTotal,
		m.EntitiesDesired,
		m.SynthesisErrorsTotal,
		m.SourceBundles,
		m.ConnectionStatus,
		m.DeletesPending,
	)
	return m
}

// RecordOperation is a convenience wrapper for EntityOperationsTotal.
func (m *Metrics) RecordOperation(kind, operation, status string) {
	m.EntityOperationsTotal.WithLabelValues(kind, operation, status).Inc()
}

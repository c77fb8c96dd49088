// Package metrics provides Prometheus metrics for reconciliation runs.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flight_tracker/internal/reconcile"
)

// SyncMetrics contains Prometheus metrics for sync runs. It is a
// reconcile.RunHook.
type SyncMetrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	recordsTotal  *prometheus.CounterVec
	sourceRecords prometheus.Gauge
	runDuration   *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge
}

// NewSyncMetrics creates and registers sync metrics on registry.
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SyncMetrics) initMetrics() {
	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flighttracker_sync_runs_total",
			Help: "Total number of reconciliation runs",
		},
		[]string{"strategy", "result"}, // result: success, failure
	)

	m.recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flighttracker_sync_records_total",
			Help: "Flight records affected by reconciliation runs",
		},
		[]string{"kind"}, // kind: created, updated, deleted, processed
	)

	m.sourceRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flighttracker_sync_source_records",
		Help: "Length of the record list in the last extracted source document",
	})

	m.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "flighttracker_sync_duration_seconds",
			Help: "Time taken by a reconciliation run",
			// 50ms to ~100s; the upstream fetch alone may take up to 30s.
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"strategy"},
	)

	m.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flighttracker_sync_last_success_timestamp_seconds",
		Help: "Unix time the last successful run finished",
	})
}

// Describe implements prometheus.Collector.
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.runsTotal.Describe(ch)
	m.recordsTotal.Describe(ch)
	m.sourceRecords.Describe(ch)
	m.runDuration.Describe(ch)
	m.lastSuccess.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	m.runsTotal.Collect(ch)
	m.recordsTotal.Collect(ch)
	m.sourceRecords.Collect(ch)
	m.runDuration.Collect(ch)
	m.lastSuccess.Collect(ch)
}

// RunCompleted records one run.
func (m *SyncMetrics) RunCompleted(_ context.Context, s reconcile.Summary) error {
	result := "failure"
	if s.Success {
		result = "success"
	}
	m.runsTotal.WithLabelValues(string(s.Strategy), result).Inc()
	m.runDuration.WithLabelValues(string(s.Strategy)).Observe(s.Duration.Seconds())

	m.recordsTotal.WithLabelValues("created").Add(float64(s.Created))
	m.recordsTotal.WithLabelValues("updated").Add(float64(s.Updated))
	m.recordsTotal.WithLabelValues("deleted").Add(float64(s.Deleted))
	m.recordsTotal.WithLabelValues("processed").Add(float64(s.Processed))

	if s.TotalFromSource != nil {
		m.sourceRecords.Set(float64(*s.TotalFromSource))
	}
	if s.Success {
		m.lastSuccess.Set(float64(s.StartedAt.Add(s.Duration).Unix()))
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *SyncMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

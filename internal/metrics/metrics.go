// Package metrics exposes Prometheus metrics for the moderation pipeline.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"edumod/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector of the pipeline. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	SubmissionsTotal     *prometheus.CounterVec // by policy action
	AnalysisDuration     prometheus.Histogram
	TransitionsTotal     *prometheus.CounterVec // by action kind and target status
	ConflictsTotal       *prometheus.CounterVec // lost compare-and-set races by operation
	EscalationsTotal     *prometheus.CounterVec // by reason and urgency
	SweepRunsTotal       *prometheus.CounterVec // by outcome
	SweepDuration        prometheus.Histogram
	SweepEscalatedTotal  prometheus.Counter
	QueueItems           *prometheus.GaugeVec // by status
	QueueOverdue         prometheus.Gauge
	QueueOpenEscalations prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the metrics and registers them on registry
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register moderation metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_submissions_total",
			Help: "Submissions analyzed, by policy decision",
		},
		[]string{"decision"},
	)
	m.AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moderation_analysis_duration_seconds",
			Help:    "Time spent analyzing a submission",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)
	m.TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_queue_transitions_total",
			Help: "Committed queue transitions by action kind and resulting status",
		},
		[]string{"action", "status"},
	)
	m.ConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_queue_conflicts_total",
			Help: "Transitions that lost a concurrent update race",
		},
		[]string{"operation"},
	)
	m.EscalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_escalations_total",
			Help: "Escalations raised to oversight by reason and urgency",
		},
		[]string{"reason", "urgency"},
	)
	m.SweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_timeout_sweep_runs_total",
			Help: "Timeout sweep runs by outcome",
		},
		[]string{"outcome"}, // ok, partial, error
	)
	m.SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moderation_timeout_sweep_duration_seconds",
			Help:    "Duration of a timeout sweep run",
			Buckets: prometheus.DefBuckets,
		},
	)
	m.SweepEscalatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_timeout_sweep_escalated_total",
			Help: "Items escalated because their review deadline passed",
		},
	)
	m.QueueItems = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moderation_queue_items",
			Help: "Items in the queue by status",
		},
		[]string{"status"},
	)
	m.QueueOverdue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moderation_queue_overdue_items",
			Help: "In-review items past their review deadline",
		},
	)
	m.QueueOpenEscalations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moderation_queue_open_escalations",
			Help: "Items waiting for oversight",
		},
	)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SubmissionsTotal, m.AnalysisDuration, m.TransitionsTotal, m.ConflictsTotal,
		m.EscalationsTotal, m.SweepRunsTotal, m.SweepDuration, m.SweepEscalatedTotal,
		m.QueueItems, m.QueueOverdue, m.QueueOpenEscalations,
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSubmission records one analyzed submission
func (m *Metrics) ObserveSubmission(decision string, took time.Duration) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(decision).Inc()
	m.AnalysisDuration.Observe(took.Seconds())
}

// ObserveTransition records a committed queue transition
func (m *Metrics) ObserveTransition(kind models.ActionKind, to models.Status) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(string(kind), string(to)).Inc()
}

// ObserveConflict records a lost compare-and-set
func (m *Metrics) ObserveConflict(operation string) {
	if m == nil {
		return
	}
	m.ConflictsTotal.WithLabelValues(operation).Inc()
}

// ObserveEscalation records an escalation to oversight
func (m *Metrics) ObserveEscalation(reason string, urgency models.Urgency) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(reason, string(urgency)).Inc()
}

// ObserveSweep records one timeout sweep run
func (m *Metrics) ObserveSweep(took time.Duration, escalated, failed int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case failed > 0:
		outcome = "partial"
	}
	m.SweepRunsTotal.WithLabelValues(outcome).Inc()
	m.SweepDuration.Observe(took.Seconds())
	m.SweepEscalatedTotal.Add(float64(escalated))
}

// SetQueueStats publishes a queue snapshot on the gauges
func (m *Metrics) SetQueueStats(stats *models.QueueStats) {
	if m == nil || stats == nil {
		return
	}
	m.QueueItems.Reset()
	for status, n := range stats.ByStatus {
		m.QueueItems.WithLabelValues(string(status)).Set(float64(n))
	}
	m.QueueOverdue.Set(float64(stats.Overdue))
	m.QueueOpenEscalations.Set(float64(stats.OpenEscalation))
}

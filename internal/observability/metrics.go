// Package observability provides Prometheus metrics for learner batch runs.
//
// Batch jobs have no scrape endpoint; metrics are written to a node_exporter
// textfile collector file at the end of a run.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gate-learner/internal/domain"
)

// Metrics holds all Prometheus metrics for a learner run.
type Metrics struct {
	Registry *prometheus.Registry

	// Learner metrics
	LearnerRunsTotal *prometheus.CounterVec
	LearnerDuration  *prometheus.HistogramVec
	BucketChanges    *prometheus.CounterVec
	TradesAnalyzed   *prometheus.GaugeVec
	TradesDropped    *prometheus.GaugeVec
	Multiplier       *prometheus.GaugeVec

	// Mirror metrics
	MirrorErrors *prometheus.CounterVec

	// Input metrics
	InputLinesSkipped *prometheus.CounterVec

	// Health metrics
	LastRunTimestamp prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gate_learner"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		LearnerRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learner",
			Name:      "runs_total",
			Help:      "Total number of learner runs by result status",
		}, []string{"learner", "status"}),
		LearnerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "learner",
			Name:      "run_duration_seconds",
			Help:      "Learner run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"learner"}),
		BucketChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learner",
			Name:      "bucket_changes_total",
			Help:      "Total number of committed multiplier changes",
		}, []string{"learner"}),
		TradesAnalyzed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "learner",
			Name:      "trades_analyzed",
			Help:      "Trades in the window of the last run",
		}, []string{"learner"}),
		TradesDropped: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "learner",
			Name:      "trades_dropped",
			Help:      "Trades without a classifiable state in the last run",
		}, []string{"learner"}),
		Multiplier: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "learner",
			Name:      "multiplier",
			Help:      "Multiplier per gate state after the last run",
		}, []string{"learner", "state"}),

		MirrorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "errors_total",
			Help:      "Total number of failed writes to optional mirrors",
		}, []string{"sink"}),

		InputLinesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "lines_skipped_total",
			Help:      "Total number of malformed input lines skipped",
		}, []string{"source"}),

		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_run_timestamp",
			Help:      "Unix timestamp of the last completed batch run",
		}),
	}
}

// RecordLearnerRun records the outcome of one learner run.
func (m *Metrics) RecordLearnerRun(r *domain.LearnerResult, d time.Duration) {
	m.LearnerRunsTotal.WithLabelValues(r.Learner, string(r.Status)).Inc()
	m.LearnerDuration.WithLabelValues(r.Learner).Observe(d.Seconds())

	if r.Status == domain.LearnerError {
		return
	}
	m.TradesAnalyzed.WithLabelValues(r.Learner).Set(float64(r.Trades))
	m.TradesDropped.WithLabelValues(r.Learner).Set(float64(r.Dropped))
	m.BucketChanges.WithLabelValues(r.Learner).Add(float64(r.Changes()))

	if r.Table != nil {
		for _, s := range r.Table.States() {
			m.Multiplier.WithLabelValues(r.Learner, string(s)).Set(r.Table.Multipliers[s])
		}
	}
}

// RecordMirrorError records a failed write to an optional mirror.
func (m *Metrics) RecordMirrorError(sink string) {
	m.MirrorErrors.WithLabelValues(sink).Inc()
}

// RecordSkippedLines records malformed input lines.
func (m *Metrics) RecordSkippedLines(source string, n int) {
	m.InputLinesSkipped.WithLabelValues(source).Add(float64(n))
}

// MarkRun sets the last run timestamp.
func (m *Metrics) MarkRun(at time.Time) {
	m.LastRunTimestamp.Set(float64(at.Unix()))
}

// WriteTextfile writes all metrics in the text exposition format for the
// node_exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

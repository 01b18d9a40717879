package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PlanningMetrics records needs recomputation, lock contention and imports.
type PlanningMetrics struct {
	recomputeDuration *prometheus.HistogramVec
	recomputeTotal    *prometheus.CounterVec
	needsComputed     prometheus.Counter
	lockWait          prometheus.Histogram
	importRows        *prometheus.CounterVec
}

// NewPlanningMetrics registers the planning metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPlanningMetrics(reg prometheus.Registerer) *PlanningMetrics {
	if reg == nil {
		return &PlanningMetrics{}
	}
	recomputeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planning_recompute_duration_seconds",
		Help:    "Duration of week needs recomputation in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})
	recomputeTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planning_recompute_total",
		Help: "Week needs recomputations by trigger and result.",
	}, []string{"trigger", "result"})
	needsComputed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planning_needs_computed_total",
		Help: "Per-order product needs written by recomputation.",
	})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planning_week_lock_wait_seconds",
		Help:    "Time spent waiting for a week lock.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})
	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planning_import_rows_total",
		Help: "Spreadsheet rows processed by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(recomputeDuration, recomputeTotal, needsComputed, lockWait, importRows)
	return &PlanningMetrics{
		recomputeDuration: recomputeDuration,
		recomputeTotal:    recomputeTotal,
		needsComputed:     needsComputed,
		lockWait:          lockWait,
		importRows:        importRows,
	}
}

// ObserveRecompute records one recomputation and its outcome.
func (m *PlanningMetrics) ObserveRecompute(trigger string, duration time.Duration, err error) {
	if m == nil || m.recomputeDuration == nil {
		return
	}
	trigger = normalizeLabel(trigger)
	m.recomputeDuration.WithLabelValues(trigger).Observe(duration.Seconds())
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.recomputeTotal.WithLabelValues(trigger, result).Inc()
}

// AddNeeds counts needs written for a week.
func (m *PlanningMetrics) AddNeeds(n int) {
	if m == nil || m.needsComputed == nil || n <= 0 {
		return
	}
	m.needsComputed.Add(float64(n))
}

// ObserveLockWait records how long a caller waited for a week lock.
func (m *PlanningMetrics) ObserveLockWait(duration time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(duration.Seconds())
}

// AddImportRows counts imported and skipped spreadsheet rows.
func (m *PlanningMetrics) AddImportRows(imported, skipped int) {
	if m == nil || m.importRows == nil {
		return
	}
	if imported > 0 {
		m.importRows.WithLabelValues("imported").Add(float64(imported))
	}
	if skipped > 0 {
		m.importRows.WithLabelValues("skipped").Add(float64(skipped))
	}
}

func normalizeLabel(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}

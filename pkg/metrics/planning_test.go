package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPlanningMetricsExportsRecomputeAndImport(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPlanningMetrics(reg)
	metrics.ObserveRecompute("forecast", 250*time.Millisecond, nil)
	metrics.ObserveRecompute("forecast", 10*time.Millisecond, errors.New("db down"))
	metrics.AddNeeds(12)
	metrics.AddImportRows(40, 2)
	metrics.ObserveLockWait(5 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "planning_recompute_total", "result", "success"); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "planning_recompute_total", "result", "failure"); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "planning_recompute_duration_seconds", "trigger", "forecast"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "planning_import_rows_total", "outcome", "skipped"); err != nil {
		t.Fatalf("fetch skipped rows: %v", err)
	} else if got != 2 {
		t.Fatalf("expected skipped=2, got %f", got)
	}

	needs := findMetricFamily(mfs, "planning_needs_computed_total")
	if needs == nil || needs.GetMetric()[0].GetCounter().GetValue() != 12 {
		t.Fatalf("expected 12 needs computed, got %v", needs)
	}
}

func TestPlanningMetricsNilSafe(t *testing.T) {
	var metrics *PlanningMetrics
	metrics.ObserveRecompute("", time.Second, nil)
	metrics.AddNeeds(3)
	metrics.AddImportRows(1, 1)
	metrics.ObserveLockWait(time.Second)

	NewPlanningMetrics(nil).AddNeeds(3)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

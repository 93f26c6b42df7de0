package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewMetrics registers against the global default registry, so tests build
// isolated counters/vecs with the same shape instead of calling it directly,
// mirroring the teacher's metrics_test.go approach.

func TestGadgetExecutionCounterLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_gadget_executions_total",
		Help: "test",
	}, []string{"gadget", "status"})
	registry.MustRegister(counter)

	counter.WithLabelValues("search", "success").Inc()
	counter.WithLabelValues("search", "success").Inc()
	counter.WithLabelValues("search", "timeout").Inc()

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Fatalf("expected 2 label combinations, got %d", count)
	}
}

func TestRunCompletedUpdatesRegisteredMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		RunsStarted:      prometheus.NewCounter(prometheus.CounterOpts{Name: "test_runs_started_total"}),
		RunsCompleted:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_runs_completed_total"}, []string{"outcome"}),
		RunDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_run_duration_seconds"}),
		IterationsPerRun: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_iterations_per_run"}),
		ActiveRuns:       prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_active_runs"}),
	}
	registry.MustRegister(m.RunsStarted, m.RunsCompleted, m.RunDuration, m.IterationsPerRun, m.ActiveRuns)

	m.RunStarted()
	if got := testutil.ToFloat64(m.ActiveRuns); got != 1 {
		t.Fatalf("ActiveRuns = %v, want 1", got)
	}

	m.RunCompleted("completed", 12.5, 3)
	if got := testutil.ToFloat64(m.ActiveRuns); got != 0 {
		t.Fatalf("ActiveRuns after completion = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.RunsCompleted.WithLabelValues("completed")); got != 1 {
		t.Fatalf("RunsCompleted[completed] = %v, want 1", got)
	}
}

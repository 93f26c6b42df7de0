package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus counters/histograms/gauges for the agent
// runtime: run lifecycle, LLM request performance, gadget execution, hook
// vetoes, and persistence side-channels. Grounded on the teacher's
// observability.Metrics, with message/session/channel/webhook metrics
// replaced by run/gadget/hook/spillover metrics matching this module's
// components (agent, internal/exec, internal/hooks, internal/media).
type Metrics struct {
	// RunsStarted counts agent runs started.
	RunsStarted prometheus.Counter

	// RunsCompleted counts runs by terminal outcome.
	// Labels: outcome (completed|aborted|max_iterations|error)
	RunsCompleted *prometheus.CounterVec

	// RunDuration measures wall-clock run time.
	RunDuration prometheus.Histogram

	// IterationsPerRun measures how many loop iterations a run took.
	IterationsPerRun prometheus.Histogram

	// ActiveRuns is a gauge of runs currently executing.
	ActiveRuns prometheus.Gauge

	// LLMRequestDuration measures provider stream latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts provider requests by outcome.
	// Labels: provider, model, status (success|error|retry)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (input|output|cached)
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD tracks estimated spend.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// ContextWindowUsed tracks per-call context window utilization.
	// Labels: provider, model
	ContextWindowUsed *prometheus.HistogramVec

	// GadgetExecutionCounter counts gadget invocations by outcome.
	// Labels: gadget, status (success|error|timeout|panic)
	GadgetExecutionCounter *prometheus.CounterVec

	// GadgetExecutionDuration measures gadget execution time.
	// Labels: gadget
	GadgetExecutionDuration *prometheus.HistogramVec

	// HookInterceptorBlocked counts calls an Interceptor vetoed.
	// Labels: hook, gadget
	HookInterceptorBlocked *prometheus.CounterVec

	// HookObserverErrors counts Observer callbacks that returned an error.
	// Labels: hook, event
	HookObserverErrors *prometheus.CounterVec

	// SpilloverEvents counts gadget results replaced with a spillover stub.
	// Labels: gadget
	SpilloverEvents prometheus.Counter

	// MediaStoredBytes tracks cumulative bytes written to the media store.
	MediaStoredBytes prometheus.Counter

	// ErrorCounter tracks errors by component and type.
	// Labels: component (agent|exec|provider|parser|hooks), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics. Call once at
// process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gadgetrun_runs_started_total",
			Help: "Total number of agent runs started.",
		}),
		RunsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gadgetrun_runs_completed_total",
			Help: "Total number of agent runs by terminal outcome.",
		}, []string{"outcome"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gadgetrun_run_duration_seconds",
			Help:    "Wall-clock duration of agent runs in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		IterationsPerRun: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gadgetrun_iterations_per_run",
			Help:    "Number of loop iterations an agent run took.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
		}),
		ActiveRuns: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gadgetrun_active_runs",
			Help: "Current number of agent runs in progress.",
		}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gadgetrun_llm_request_duration_seconds",
			Help:    "Duration of provider streaming requests in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		LLMRequestCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gadgetrun_llm_requests_total",
			Help: "Total number of provider requests by provider, model, and status.",
		}, []string{"provider", "model", "status"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gadgetrun_llm_tokens_total",
			Help: "Total tokens consumed by provider, model, and type.",
		}, []string{"provider", "model", "type"}),
		LLMCostUSD: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gadgetrun_llm_cost_usd_total",
			Help: "Estimated provider spend in USD.",
		}, []string{"provider", "model"}),
		ContextWindowUsed: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gadgetrun_context_window_tokens",
			Help:    "Context window tokens used per call.",
			Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000, 256000},
		}, []string{"provider", "model"}),
		GadgetExecutionCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gadgetrun_gadget_executions_total",
			Help: "Total gadget executions by name and status.",
		}, []string{"gadget", "status"}),
		GadgetExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gadgetrun_gadget_execution_duration_seconds",
			Help:    "Duration of gadget executions in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"gadget"}),
		HookInterceptorBlocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gadgetrun_hook_interceptor_blocked_total",
			Help: "Gadget calls vetoed by an Interceptor hook.",
		}, []string{"hook", "gadget"}),
		HookObserverErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gadgetrun_hook_observer_errors_total",
			Help: "Observer hook callbacks that returned an error.",
		}, []string{"hook", "event"}),
		SpilloverEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gadgetrun_spillover_events_total",
			Help: "Gadget results replaced by a spillover stub for exceeding the output budget.",
		}),
		MediaStoredBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gadgetrun_media_stored_bytes_total",
			Help: "Cumulative bytes written to the media store.",
		}),
		ErrorCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gadgetrun_errors_total",
			Help: "Total errors by component and error type.",
		}, []string{"component", "error_type"}),
	}
}

// RunStarted records the start of a run and increments the active gauge.
func (m *Metrics) RunStarted() {
	m.RunsStarted.Inc()
	m.ActiveRuns.Inc()
}

// RunCompleted records a run's terminal outcome, duration, and iteration count.
func (m *Metrics) RunCompleted(outcome string, durationSeconds float64, iterations int) {
	m.ActiveRuns.Dec()
	m.RunsCompleted.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(durationSeconds)
	m.IterationsPerRun.Observe(float64(iterations))
}

// RecordLLMRequest records metrics for one provider streaming request.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, inputTokens, outputTokens, cachedTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
	if cachedTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "cached").Add(float64(cachedTokens))
	}
	m.ContextWindowUsed.WithLabelValues(provider, model).Observe(float64(inputTokens + outputTokens))
}

// RecordLLMCost records estimated spend for one request.
func (m *Metrics) RecordLLMCost(provider, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordGadgetExecution records one gadget invocation's outcome and duration.
func (m *Metrics) RecordGadgetExecution(gadget, status string, durationSeconds float64) {
	m.GadgetExecutionCounter.WithLabelValues(gadget, status).Inc()
	m.GadgetExecutionDuration.WithLabelValues(gadget).Observe(durationSeconds)
}

// RecordInterceptorBlock records an Interceptor vetoing a gadget call.
func (m *Metrics) RecordInterceptorBlock(hook, gadget string) {
	m.HookInterceptorBlocked.WithLabelValues(hook, gadget).Inc()
}

// RecordObserverError records an Observer callback returning an error.
func (m *Metrics) RecordObserverError(hook, event string) {
	m.HookObserverErrors.WithLabelValues(hook, event).Inc()
}

// RecordSpillover records a gadget result exceeding the output budget.
func (m *Metrics) RecordSpillover() {
	m.SpilloverEvents.Inc()
}

// RecordMediaStored records bytes written to the media store.
func (m *Metrics) RecordMediaStored(bytes int) {
	m.MediaStoredBytes.Add(float64(bytes))
}

// RecordError increments the error counter for a component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

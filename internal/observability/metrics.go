package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "agentic_rag"

// Outcome labels for generation calls.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeFallback = "fallback"
)

// Metrics holds the service collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	generationCalls    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	fallbacks          *prometheus.CounterVec
	tokens             *prometheus.CounterVec

	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	runsInFlight prometheus.Gauge
	traceSteps   *prometheus.CounterVec
	refinements  prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers every collector. withRuntime adds the
// Go runtime and process collectors.
func NewMetrics(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		generationCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_calls_total",
				Help:      "Generation service calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		generationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Generation call latency",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"operation"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_fallbacks_total",
				Help:      "Structured responses replaced by a fallback value",
			},
			[]string{"operation", "policy"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_tokens_total",
				Help:      "Tokens reported by the provider",
			},
			[]string{"operation", "kind"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Finished pipeline runs by terminal status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_run_duration_seconds",
				Help:      "Wall time of a pipeline run",
				Buckets:   []float64{1, 2, 5, 10, 20, 40, 80},
			},
		),
		runsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_in_flight",
				Help:      "Pipeline runs currently executing",
			},
		),
		traceSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_trace_steps_total",
				Help:      "Trace steps appended by agent role",
			},
			[]string{"role"},
		),
		refinements: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_refinements_total",
				Help:      "Maker refinements triggered by a failed audit",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.generationCalls,
		m.generationDuration,
		m.fallbacks,
		m.tokens,
		m.runsTotal,
		m.runDuration,
		m.runsInFlight,
		m.traceSteps,
		m.refinements,
		m.httpRequests,
		m.httpDuration,
	)

	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordGeneration(operation, outcome string, elapsed time.Duration) {
	m.generationCalls.WithLabelValues(operation, outcome).Inc()
	m.generationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordFallback(operation, policy string) {
	m.fallbacks.WithLabelValues(operation, policy).Inc()
}

func (m *Metrics) RecordTokens(operation string, prompt, completion int) {
	if prompt > 0 {
		m.tokens.WithLabelValues(operation, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.tokens.WithLabelValues(operation, "completion").Add(float64(completion))
	}
}

func (m *Metrics) RunStarted() {
	m.runsInFlight.Inc()
}

func (m *Metrics) RunFinished(status string, elapsed time.Duration) {
	m.runsInFlight.Dec()
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordStep(role string) {
	m.traceSteps.WithLabelValues(role).Inc()
}

func (m *Metrics) RecordRefinement() {
	m.refinements.Inc()
}

func (m *Metrics) RecordHTTP(method, route string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, statusLabel(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

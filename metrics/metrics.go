// Package metrics exposes Prometheus collectors for chat turns, tool
// dispatch, fallback ingestion and timeline extraction.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	turns            *prometheus.CounterVec
	turnIterations   prometheus.Histogram
	modelCalls       *prometheus.CounterVec
	toolCalls        *prometheus.CounterVec
	fallbackIngests  *prometheus.CounterVec
	timelineEvents   prometheus.Counter
	timelineFailures prometheus.Counter
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexcounsel_turns_total",
			Help: "Chat turns processed, by outcome.",
		}, []string{"outcome"}),
		turnIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lexcounsel_turn_iterations",
			Help:    "Model round trips per chat turn.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexcounsel_model_calls_total",
			Help: "Model generation calls, by outcome.",
		}, []string{"outcome"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexcounsel_tool_calls_total",
			Help: "Tool invocations, by tool and result status.",
		}, []string{"tool", "status"}),
		fallbackIngests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexcounsel_fallback_ingestions_total",
			Help: "On-demand statute ingestions after an empty semantic search.",
		}, []string{"outcome"}),
		timelineEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lexcounsel_timeline_events_total",
			Help: "Timeline events extracted from model replies.",
		}),
		timelineFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lexcounsel_timeline_parse_failures_total",
			Help: "Timeline blocks that could not be parsed.",
		}),
	}
	m.registry.MustRegister(
		m.turns, m.turnIterations, m.modelCalls, m.toolCalls,
		m.fallbackIngests, m.timelineEvents, m.timelineFailures,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordTurn(outcome string, iterations int) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	if iterations > 0 {
		m.turnIterations.Observe(float64(iterations))
	}
}

func (m *Metrics) RecordModelCall(outcome string) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) RecordFallbackIngestion(outcome string) {
	if m == nil {
		return
	}
	m.fallbackIngests.WithLabelValues(outcome).Inc()
}

// RecordTimeline counts extracted events and parse failures
func (m *Metrics) RecordTimeline(events int, parseFailed bool) {
	if m == nil {
		return
	}
	m.timelineEvents.Add(float64(events))
	if parseFailed {
		m.timelineFailures.Inc()
	}
}

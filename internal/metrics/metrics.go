package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Run metrics
	RunsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minerva_runs_started_total",
			Help: "Total number of analysis runs started",
		},
		[]string{"model", "mode"}, // mode: live|mock
	)

	RunsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minerva_runs_completed_total",
			Help: "Total number of analysis runs finished",
		},
		[]string{"status", "decision"}, // status: done|error
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "minerva_run_duration_seconds",
			Help:    "End-to-end run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minerva_stage_duration_seconds",
			Help:    "Per-stage duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	// LLM metrics
	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minerva_llm_calls_total",
			Help: "Total number of LLM chat calls",
		},
		[]string{"persona", "model", "status"}, // status: success|error|timeout
	)

	LLMLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minerva_llm_latency_seconds",
			Help:    "LLM call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"persona", "model"},
	)

	// Tool metrics
	ToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minerva_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"}, // status: success|error
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minerva_tool_latency_seconds",
			Help:    "Tool execution latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"tool"},
	)

	// Cache metrics
	CacheFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minerva_cache_fetches_total",
			Help: "Data adapter fetches by source",
		},
		[]string{"data_type", "source"}, // source: network|cache_ttl|cache_304|cache_stale|error
	)

	// Progress bus metrics
	EventsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minerva_events_published_total",
			Help: "Total progress events published",
		},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minerva_events_dropped_total",
			Help: "Progress events dropped on slow subscriber buffers",
		},
	)
)

func init() {
	prometheus.MustRegister(RunsStarted)
	prometheus.MustRegister(RunsCompleted)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(LLMCalls)
	prometheus.MustRegister(LLMLatency)
	prometheus.MustRegister(ToolExecutions)
	prometheus.MustRegister(ToolLatency)
	prometheus.MustRegister(CacheFetches)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsDropped)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordToolExecution records a tool execution
func RecordToolExecution(tool string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	ToolExecutions.WithLabelValues(tool, status).Inc()
	ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// RecordLLMCall records one LLM chat call
func RecordLLMCall(persona, model string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	LLMCalls.WithLabelValues(persona, model, status).Inc()
	LLMLatency.WithLabelValues(persona, model).Observe(latency.Seconds())
}

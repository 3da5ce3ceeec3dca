package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of agent runs
type Metrics struct {
	registry *prometheus.Registry

	// Token metrics, incremented once per successful run
	InputTokensTotal  *prometheus.CounterVec
	OutputTokensTotal *prometheus.CounterVec
	TotalTokensTotal  *prometheus.CounterVec

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Tool metrics
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec
}

var (
	defaultOnce sync.Once
	defaultInst *Metrics
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultInst = NewMetrics()
	})
	return defaultInst
}

// NewMetrics creates and registers all metrics on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		InputTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrun_input_tokens_total",
				Help: "Total input tokens consumed by successful runs",
			},
			[]string{"provider"},
		),
		OutputTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrun_output_tokens_total",
				Help: "Total output tokens produced by successful runs",
			},
			[]string{"provider"},
		),
		TotalTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrun_total_tokens_total",
				Help: "Total tokens of successful runs",
			},
			[]string{"provider"},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrun_runs_total",
				Help: "Total number of agent runs",
			},
			[]string{"provider", "status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrun_run_duration_seconds",
				Help:    "Duration of agent runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrun_tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrun_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
	}

	registry.MustRegister(
		m.InputTokensTotal,
		m.OutputTokensTotal,
		m.TotalTokensTotal,
		m.RunsTotal,
		m.RunDuration,
		m.ToolExecutionsTotal,
		m.ToolExecutionDuration,
	)

	return m
}

// RecordTokens increments the three token counters once each.
func (m *Metrics) RecordTokens(provider string, input, output, total int64) {
	m.InputTokensTotal.WithLabelValues(provider).Add(float64(input))
	m.OutputTokensTotal.WithLabelValues(provider).Add(float64(output))
	m.TotalTokensTotal.WithLabelValues(provider).Add(float64(total))
}

// RecordRun records the outcome and duration of one run.
func (m *Metrics) RecordRun(provider string, duration time.Duration, success bool) {
	m.RunsTotal.WithLabelValues(provider, status(success)).Inc()
	m.RunDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordToolExecution records one tool call.
func (m *Metrics) RecordToolExecution(tool string, duration time.Duration, success bool) {
	m.ToolExecutionsTotal.WithLabelValues(tool, status(success)).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

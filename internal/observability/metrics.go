package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	memoryOpTotal    *prometheus.CounterVec
	memoryOpDuration *prometheus.HistogramVec
	activeRuns       prometheus.Gauge
	teardownErrors   *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			memoryOpTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentrun_memory_operations_total",
					Help: "Memory backend operations by backend, operation and status.",
				},
				[]string{"backend", "op", "status"},
			),
			memoryOpDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agentrun_memory_operation_duration_seconds",
					Help:    "Memory backend operation duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"backend", "op"},
			),
			activeRuns: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "agentrun_active_runs",
					Help: "Runs with registered listeners.",
				},
			),
			teardownErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentrun_teardown_errors_total",
					Help: "Resource release failures during run teardown by resource kind.",
				},
				[]string{"kind"},
			),
		}

		prometheus.MustRegister(
			m.memoryOpTotal,
			m.memoryOpDuration,
			m.activeRuns,
			m.teardownErrors,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// RecordMemoryOperation records one backend call.
func RecordMemoryOperation(backend, op string, duration time.Duration, err error) {
	m := getMetrics()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.memoryOpTotal.WithLabelValues(backend, op, status).Inc()
	m.memoryOpDuration.WithLabelValues(backend, op).Observe(duration.Seconds())
}

// RecordTeardownError counts a failed resource release.
func RecordTeardownError(kind string) {
	getMetrics().teardownErrors.WithLabelValues(kind).Inc()
}

func setActiveRuns(n int) {
	getMetrics().activeRuns.Set(float64(n))
}

// Package metrics provides the Prometheus metrics surface for the
// scheduling core: run outcomes, solve/IIS latency, and the worker queue's
// depth and oldest-wait, which spec §5 calls out as observable for
// operational purposes.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric this service exports and the helper methods
// that record them.
type Registry struct {
	registry prometheus.Registerer

	httpRequestsTotal prometheus.CounterVec
	runsTotal         prometheus.CounterVec

	httpRequestDuration prometheus.HistogramVec
	solveDuration       prometheus.HistogramVec
	iisDuration         prometheus.HistogramVec

	queueDepth       prometheus.GaugeVec
	oldestQueuedAge  prometheus.GaugeVec

	mu sync.RWMutex
}

// New creates and registers every metric against the global default
// registry. Panics if a metric fails to register.
func New() *Registry {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry is New against a caller-supplied registerer, used
// by tests to avoid colliding with the global default registry.
func NewWithRegistry(registerer prometheus.Registerer) *Registry {
	m := &Registry{registry: registerer}

	m.httpRequestsTotal = *prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftsolver_http_requests_total",
			Help: "Total HTTP requests by method and path",
		},
		[]string{"method", "path"},
	)
	m.registry.MustRegister(&m.httpRequestsTotal)

	m.runsTotal = *prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftsolver_runs_total",
			Help: "Total completed runs by terminal status",
		},
		[]string{"status"},
	)
	m.registry.MustRegister(&m.runsTotal)

	m.httpRequestDuration = *prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shiftsolver_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	m.registry.MustRegister(&m.httpRequestDuration)

	m.solveDuration = *prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shiftsolver_solve_duration_seconds",
			Help:    "Wall-clock time spent inside the MILP backend per run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"status"},
	)
	m.registry.MustRegister(&m.solveDuration)

	m.iisDuration = *prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shiftsolver_iis_duration_seconds",
			Help:    "Time spent in deletion-filtering IIS classification for infeasible runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{},
	)
	m.registry.MustRegister(&m.iisDuration)

	m.queueDepth = *prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shiftsolver_queue_depth",
			Help: "Pending solve tasks waiting for a free worker",
		},
		[]string{"queue_name"},
	)
	m.registry.MustRegister(&m.queueDepth)

	m.oldestQueuedAge = *prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shiftsolver_oldest_queued_age_seconds",
			Help: "Age of the oldest still-queued run",
		},
		[]string{"queue_name"},
	)
	m.registry.MustRegister(&m.oldestQueuedAge)

	return m
}

// RecordHTTPRequest records one HTTP request's count and latency.
func (m *Registry) RecordHTTPRequest(method, path string, statusCode int, seconds float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.httpRequestsTotal.WithLabelValues(method, path).Inc()
	m.httpRequestDuration.WithLabelValues(method, path, statusCodeLabel(statusCode)).Observe(seconds)
}

// RecordRunOutcome increments the terminal-status counter for one run.
func (m *Registry) RecordRunOutcome(status string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.runsTotal.WithLabelValues(status).Inc()
}

// ObserveSolveDuration records how long the backend spent on one run.
func (m *Registry) ObserveSolveDuration(status string, seconds float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.solveDuration.WithLabelValues(status).Observe(seconds)
}

// ObserveIISDuration records how long deletion-filtering classification
// took for one infeasible run.
func (m *Registry) ObserveIISDuration(seconds float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.iisDuration.WithLabelValues().Observe(seconds)
}

// SetQueueDepth reports the current number of queued-but-not-running runs.
func (m *Registry) SetQueueDepth(queueName string, depth int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.queueDepth.WithLabelValues(queueName).Set(float64(depth))
}

// SetOldestQueuedAge reports the age, in seconds, of the oldest still-queued
// run, or 0 when the queue is empty.
func (m *Registry) SetOldestQueuedAge(queueName string, seconds float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.oldestQueuedAge.WithLabelValues(queueName).Set(seconds)
}

// Handler serves the registry's metrics in the Prometheus exposition
// format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry.(prometheus.Gatherer), promhttp.HandlerOpts{})
}

func statusCodeLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every method is safe on a nil
// receiver so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Task metrics
	TasksSubmitted *prometheus.CounterVec
	TasksFinished  *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	TasksRunning   prometheus.Gauge
	QueueRejected  prometheus.Counter

	// Fetch metrics
	FetchAttempts *prometheus.CounterVec
	FetchBytes    prometheus.Counter

	// Cache metrics
	CacheLookups   *prometheus.CounterVec
	CacheEvictions prometheus.Counter

	// Inference metrics
	InferenceCalls    *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint
type Snapshot struct {
	Submitted int64 `json:"submitted"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	Running   int64 `json:"running"`
	CacheHits int64 `json:"cache_hits"`
}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagetools_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagetools_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagetools_tasks_submitted_total",
				Help: "Total number of submitted tasks",
			},
			[]string{"kind"},
		),
		TasksFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagetools_tasks_finished_total",
				Help: "Total number of finished tasks by outcome",
			},
			[]string{"kind", "state", "error_kind"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagetools_task_duration_seconds",
				Help:    "Task wall time from start to terminal state",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind", "state"},
		),
		TasksRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagetools_tasks_running",
				Help: "Number of tasks currently running",
			},
		),
		QueueRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pagetools_queue_rejected_total",
				Help: "Submissions rejected because the worker queue was full",
			},
		),

		FetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagetools_fetch_attempts_total",
				Help: "Fetch attempts by result",
			},
			[]string{"result"},
		),
		FetchBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pagetools_fetch_bytes_total",
				Help: "Response body bytes read",
			},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagetools_cache_lookups_total",
				Help: "Memo cache lookups by result",
			},
			[]string{"operation", "result"},
		),
		CacheEvictions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pagetools_cache_evictions_total",
				Help: "Memo cache evictions",
			},
		),

		InferenceCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagetools_inference_calls_total",
				Help: "Inference backend calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		InferenceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagetools_inference_duration_seconds",
				Help:    "Inference backend call duration",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagetools_ws_connections",
				Help: "Number of open event stream connections",
			},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TaskSubmitted records an accepted submission
func (m *Metrics) TaskSubmitted(kind string) {
	if m == nil {
		return
	}
	m.TasksSubmitted.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.snapshot.Submitted++
	m.mu.Unlock()
}

// TaskRejected records a submission refused by the worker pool
func (m *Metrics) TaskRejected() {
	if m == nil {
		return
	}
	m.QueueRejected.Inc()
}

// TaskStarted records a task entering the running state
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.TasksRunning.Inc()
	m.mu.Lock()
	m.snapshot.Running++
	m.mu.Unlock()
}

// TaskStopped records a task leaving the running state
func (m *Metrics) TaskStopped() {
	if m == nil {
		return
	}
	m.TasksRunning.Dec()
	m.mu.Lock()
	m.snapshot.Running--
	m.mu.Unlock()
}

// TaskFinished records a terminal outcome
func (m *Metrics) TaskFinished(kind, state, errorKind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TasksFinished.WithLabelValues(kind, state, errorKind).Inc()
	m.TaskDuration.WithLabelValues(kind, state).Observe(duration.Seconds())

	m.mu.Lock()
	switch state {
	case "succeeded":
		m.snapshot.Succeeded++
	case "cancelled":
		m.snapshot.Cancelled++
	default:
		m.snapshot.Failed++
	}
	m.mu.Unlock()
}

// FetchAttempt records one network attempt ("ok", "retry", "timeout", "error")
func (m *Metrics) FetchAttempt(result string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(result).Inc()
}

// FetchBytesRead adds to the body byte counter
func (m *Metrics) FetchBytesRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FetchBytes.Add(float64(n))
}

// CacheLookup records a memo cache hit or miss
func (m *Metrics) CacheLookup(operation string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		m.mu.Lock()
		m.snapshot.CacheHits++
		m.mu.Unlock()
	}
	m.CacheLookups.WithLabelValues(operation, result).Inc()
}

// CacheEvicted records a memo cache eviction
func (m *Metrics) CacheEvicted() {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
}

// RecordInference records one inference backend call
func (m *Metrics) RecordInference(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.InferenceCalls.WithLabelValues(operation, status).Inc()
	m.InferenceDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncWSConnections increments event stream connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements event stream connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns a copy of the current summary values
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

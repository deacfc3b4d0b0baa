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

const namespace = "apidiag"

// Metrics holds all Prometheus metrics.
// All methods are safe on a nil *Metrics so components may run unmetered.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Injection metrics
	Injections *prometheus.CounterVec
	Snapshots  prometheus.Counter
	Restores   *prometheus.CounterVec

	// Log store metrics
	RecordsAppended prometheus.Counter
	AppendErrors    prometheus.Counter
	ParseFailures   prometheus.Counter

	// Index metrics
	IndexRecords      prometheus.Gauge
	IndexCorrelations prometheus.Gauge
	IndexRebuilds     *prometheus.CounterVec

	// Query metrics
	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Snapshot for status output - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for status output
type MetricsSnapshot struct {
	TotalRequests   int64 `json:"total_requests"`
	TotalErrors     int64 `json:"total_errors"`
	RecordsAppended int64 `json:"records_appended"`
	ParseFailures   int64 `json:"parse_failures"`
	Injections      int64 `json:"injections"`
	Rejections      int64 `json:"rejections"`
}

// NewMetrics creates a metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of query server requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Query server request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),

		// Injection metrics
		Injections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "injections_total",
				Help:      "Injector operations by operation and result",
			},
			[]string{"op", "result"},
		),
		Snapshots: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_total",
				Help:      "Total number of file snapshots taken",
			},
		),
		Restores: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "restores_total",
				Help:      "Snapshot restores by result",
			},
			[]string{"result"},
		),

		// Log store metrics
		RecordsAppended: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_appended_total",
				Help:      "Total number of log records appended",
			},
		),
		AppendErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "append_errors_total",
				Help:      "Total number of failed appends",
			},
		),
		ParseFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_failures_total",
				Help:      "Total number of log lines that failed to decode",
			},
		),

		// Index metrics
		IndexRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_records",
				Help:      "Number of records held by the correlation index",
			},
		),
		IndexCorrelations: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_correlations",
				Help:      "Number of distinct correlation ids in the index",
			},
		),
		IndexRebuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_loads_total",
				Help:      "Index loads by source (rebuild, checkpoint)",
			},
			[]string{"source"},
		),

		// Query metrics
		Queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Search queries by kind",
			},
			[]string{"kind"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Search query duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"kind"},
		),
	}
}

// Registry returns the private registry backing these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler for this registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records a query server request
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordInjection records an apply or remove outcome
func (m *Metrics) RecordInjection(op, result string) {
	if m == nil {
		return
	}
	m.Injections.WithLabelValues(op, result).Inc()

	m.mu.Lock()
	m.snapshot.Injections++
	if result == "rejected" {
		m.snapshot.Rejections++
	}
	m.mu.Unlock()
}

// IncSnapshots increments the snapshot counter
func (m *Metrics) IncSnapshots() {
	if m == nil {
		return
	}
	m.Snapshots.Inc()
}

// RecordRestore records a restore outcome
func (m *Metrics) RecordRestore(result string) {
	if m == nil {
		return
	}
	m.Restores.WithLabelValues(result).Inc()
}

// IncAppended increments the appended record counter
func (m *Metrics) IncAppended() {
	if m == nil {
		return
	}
	m.RecordsAppended.Inc()
	m.mu.Lock()
	m.snapshot.RecordsAppended++
	m.mu.Unlock()
}

// IncAppendErrors increments the failed append counter
func (m *Metrics) IncAppendErrors() {
	if m == nil {
		return
	}
	m.AppendErrors.Inc()
}

// IncParseFailures increments the parse failure counter
func (m *Metrics) IncParseFailures() {
	if m == nil {
		return
	}
	m.ParseFailures.Inc()
	m.mu.Lock()
	m.snapshot.ParseFailures++
	m.mu.Unlock()
}

// SetIndexSize sets the index gauges
func (m *Metrics) SetIndexSize(records, correlations int) {
	if m == nil {
		return
	}
	m.IndexRecords.Set(float64(records))
	m.IndexCorrelations.Set(float64(correlations))
}

// IncIndexLoads records how the index was populated
func (m *Metrics) IncIndexLoads(source string) {
	if m == nil {
		return
	}
	m.IndexRebuilds.WithLabelValues(source).Inc()
}

// RecordQuery records a search query
func (m *Metrics) RecordQuery(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(kind).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// Snapshot returns the tracked values
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Package metrics holds the Prometheus collectors of the API server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "todoapi"

// Metrics is registered on its own registry so several instances (one per
// test) can coexist. All methods are safe on a nil receiver.
//
// Metrics:
//   - todoapi_http_requests_total{method,route,status}
//   - todoapi_http_request_duration_seconds{method,route}
//   - todoapi_embedding_duration_seconds{provider}
//   - todoapi_embedding_fallbacks_total{reason}
//   - todoapi_index_operations_total{op,result}
//   - todoapi_index_sync_failures_total{op}
//   - todoapi_reindexed_tasks_total
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	EmbeddingDuration  *prometheus.HistogramVec
	EmbeddingFallbacks *prometheus.CounterVec

	IndexOperations   *prometheus.CounterVec
	IndexSyncFailures *prometheus.CounterVec
	ReindexedTasks    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		EmbeddingDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Duration of embedding generation in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"provider"}),

		EmbeddingFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_fallbacks_total",
			Help:      "Number of times a zero vector was used instead of a model embedding",
		}, []string{"reason"}),

		IndexOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_operations_total",
			Help:      "Vector index calls by operation and result",
		}, []string{"op", "result"}),

		IndexSyncFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_sync_failures_total",
			Help:      "Task mutations committed to the database but not mirrored to the vector index",
		}, []string{"op"}),

		ReindexedTasks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reindexed_tasks_total",
			Help:      "Tasks written to the vector index by reconciliation",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveEmbedding(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.EmbeddingDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) EmbeddingFallback(reason string) {
	if m == nil {
		return
	}
	m.EmbeddingFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) IndexOperation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.IndexOperations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) IndexSyncFailure(op string) {
	if m == nil {
		return
	}
	m.IndexSyncFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) TaskReindexed() {
	if m == nil {
		return
	}
	m.ReindexedTasks.Inc()
}

package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.IndexSyncFailure("upsert")
	m.IndexSyncFailure("upsert")
	m.IndexSyncFailure("delete")
	m.EmbeddingFallback("timeout")
	m.IndexOperation("search", nil)
	m.IndexOperation("search", errors.New("x"))
	m.TaskReindexed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexSyncFailures.WithLabelValues("upsert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexSyncFailures.WithLabelValues("delete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingFallbacks.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexOperations.WithLabelValues("search", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexOperations.WithLabelValues("search", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReindexedTasks))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTP("GET", "/health", 200, time.Millisecond)
		m.ObserveEmbedding("hash", time.Millisecond)
		m.EmbeddingFallback("error")
		m.IndexOperation("upsert", nil)
		m.IndexSyncFailure("upsert")
		m.TaskReindexed()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/users/:user_id/tasks", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `todoapi_http_requests_total{method="GET",route="/users/:user_id/tasks",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

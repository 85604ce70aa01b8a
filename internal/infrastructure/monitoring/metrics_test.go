package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TaskSubmitted("fetch")
		m.TaskStarted()
		m.TaskStopped()
		m.TaskFinished("fetch", "succeeded", "", time.Second)
		m.FetchAttempt("ok")
		m.CacheLookup("sentiment_analysis", true)
		m.RecordInference("sentiment_analysis", "ok", time.Millisecond)
		NewTimer(m, "x").Stop("ok")
	})
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestIndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}

func TestTaskLifecycleCounters(t *testing.T) {
	m := NewMetrics()

	m.TaskSubmitted("analyze")
	m.TaskStarted()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksRunning))

	m.TaskStopped()
	m.TaskFinished("analyze", "failed", "analysis.unknown_operation", time.Millisecond)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.TasksRunning))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.TasksFinished.WithLabelValues("analyze", "failed", "analysis.unknown_operation")))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Submitted)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Zero(t, snap.Running)
}

func TestCacheCounters(t *testing.T) {
	m := NewMetrics()
	m.CacheLookup("sentiment_analysis", false)
	m.CacheLookup("sentiment_analysis", true)
	m.CacheLookup("sentiment_analysis", true)
	m.CacheEvicted()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheLookups.WithLabelValues("sentiment_analysis", "hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheEvictions))
	assert.Equal(t, int64(2), m.Snapshot().CacheHits)
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/tasks/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/task_123", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/tasks/:id", "200")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.FetchAttempt("retry")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pagetools_fetch_attempts_total{result="retry"} 1`)
}

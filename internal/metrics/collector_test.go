package metrics

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.Registry())
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.sessionsTotal)
	assert.NotNil(t, collector.dbInitAttempts)
}

// 独立 Registry：同名 namespace 重复创建不会 panic
func TestNewCollector_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector("salesflow", zap.NewNop())
		NewCollector("salesflow", zap.NewNop())
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	collector.RecordHTTPRequest("GET", "/api/v1/leads", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/api/v1/leads", 201, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("GET", "/api/v1/leads", 503, 50*time.Millisecond, 0, 10)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/v1/leads", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/v1/leads", "5xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.httpRequestDuration))
}

func TestCollector_RecordInitAttempt(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	collector.RecordInitAttempt(errors.New("connection refused"))
	collector.RecordInitAttempt(errors.New("connection refused"))
	collector.RecordInitAttempt(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.dbInitAttempts.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.dbInitAttempts.WithLabelValues("success")))
}

func TestCollector_RecordSession(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	collector.RecordSession("committed", 5*time.Millisecond)
	collector.RecordSession("committed", 7*time.Millisecond)
	collector.RecordSession("rolled_back", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.sessionsTotal.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.sessionsTotal.WithLabelValues("rolled_back")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.sessionDuration))
}

func TestCollector_RecordDBStats(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	collector.RecordDBStats("postgres", sql.DBStats{OpenConnections: 10, Idle: 4, InUse: 6, WaitCount: 3})

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
	assert.Equal(t, 6.0, testutil.ToFloat64(collector.dbConnectionsInUse.WithLabelValues("postgres")))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.dbWaitCount.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordSession("committed", time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.sessionsTotal.WithLabelValues("committed")))
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector("salesflow", zap.NewNop())
	collector.RecordSession("commit_failed", time.Millisecond)

	srv := httptest.NewServer(collector.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `salesflow_db_sessions_total{outcome="commit_failed"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(301))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(500))
	assert.Equal(t, "unknown", statusCode(0))
}

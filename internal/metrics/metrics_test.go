package metrics

import (
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

	m.PushBatch("success")
	m.PushBatch("success")
	m.PullDegraded("customers")
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pushTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pullDegraded.WithLabelValues("customers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsConnections))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Conflict("merge")
	m.ObserveHTTP("POST", "/sync/push", "200", 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tenantsync_conflicts_total{strategy="merge"} 1`)
	assert.Contains(t, string(body), "tenantsync_http_request_duration_seconds")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.PushBatch("error")
		m.PushChange("customers", "create")
		m.Pull("changes")
		m.NotificationDropped()
		m.ObserveHTTP("GET", "/health", "200", time.Millisecond)
	})
	assert.Nil(t, m.Registry())
}

package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSyncMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetricsWith(reg).(*syncMetrics)

	m.RecordOperation("edit-file", "ok", 2*time.Millisecond)
	m.RecordOperation("edit-file", "ok", time.Millisecond)
	m.RecordOperation("get-file", "not_found", time.Millisecond)
	m.RecordMessageDropped("disconnected")
	m.RecordSessionOpened("websocket")
	m.RecordSessionClosed("websocket")
	m.RecordRateLimited("tcp")
	m.RecordBytes("websocket", "in", 128)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("edit-file", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("get-file", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesDropped.WithLabelValues("disconnected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsTotal.WithLabelValues("websocket", "opened")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsTotal.WithLabelValues("websocket", "closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("tcp")))
	assert.Equal(t, 128.0, testutil.ToFloat64(m.bytesTotal.WithLabelValues("websocket", "in")))
}

func TestSyncMetrics_Gauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetricsWith(reg).(*syncMetrics)

	m.SetActiveSessions("websocket", 3)
	m.SetActiveSessions("websocket", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeSessions.WithLabelValues("websocket")))
}

func TestSyncMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetricsWith(reg)
	m.RecordBroadcast(3)
	m.RecordOperation("list-files", "ok", time.Millisecond)

	count, err := testutil.GatherAndCount(reg, "dittosync_broadcast_recipients", "dittosync_operations_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

// Package prometheus contains the Prometheus-backed metrics collectors.
package prometheus

import (
	"time"

	"github.com/marmos91/dittosync/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// syncMetrics is the Prometheus implementation of metrics.SyncMetrics.
type syncMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	broadcastFanout   prometheus.Histogram
	messagesDropped   *prometheus.CounterVec
	activeSessions    *prometheus.GaugeVec
	sessionsTotal     *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	bytesTotal        *prometheus.CounterVec
}

// NewSyncMetrics creates a Prometheus-backed SyncMetrics registered on the
// global registry.
//
// Returns a no-op implementation if InitRegistry has not been called.
func NewSyncMetrics() metrics.SyncMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopSyncMetrics()
	}
	return NewSyncMetricsWith(metrics.GetRegistry())
}

// NewSyncMetricsWith registers the collectors on reg. Tests pass a private
// registry to avoid duplicate registration across cases.
func NewSyncMetricsWith(reg prometheus.Registerer) metrics.SyncMetrics {
	factory := promauto.With(reg)

	return &syncMetrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_operations_total",
				Help: "Total number of file operations by type and outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittosync_operation_duration_milliseconds",
				Help: "Duration of file operations in milliseconds, including the wait for the engine lock",
				Buckets: []float64{
					0.1, // 100us
					1,   // 1ms
					10,  // 10ms
					100, // 100ms
					1000,
				},
			},
			[]string{"operation"},
		),
		broadcastFanout: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittosync_broadcast_recipients",
				Help:    "Number of sessions each broadcast was delivered to",
				Buckets: []float64{0, 1, 2, 5, 10, 50, 100},
			},
		),
		messagesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_messages_dropped_total",
				Help: "Outbound messages not delivered, by reason",
			},
			[]string{"reason"},
		),
		activeSessions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittosync_active_sessions",
				Help: "Current number of connected sessions",
			},
			[]string{"transport"},
		),
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_sessions_total",
				Help: "Session lifecycle events by transport",
			},
			[]string{"transport", "event"},
		),
		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_rate_limited_total",
				Help: "Operations delayed by the per-session rate limiter",
			},
			[]string{"transport"},
		),
		bytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosync_wire_bytes_total",
				Help: "Bytes received and sent on client connections",
			},
			[]string{"transport", "direction"},
		),
	}
}

func (m *syncMetrics) RecordOperation(operation string, outcome string, duration time.Duration) {
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *syncMetrics) RecordBroadcast(recipients int) {
	m.broadcastFanout.Observe(float64(recipients))
}

func (m *syncMetrics) RecordMessageDropped(reason string) {
	m.messagesDropped.WithLabelValues(reason).Inc()
}

func (m *syncMetrics) SetActiveSessions(transport string, count int32) {
	m.activeSessions.WithLabelValues(transport).Set(float64(count))
}

func (m *syncMetrics) RecordSessionOpened(transport string) {
	m.sessionsTotal.WithLabelValues(transport, "opened").Inc()
}

func (m *syncMetrics) RecordSessionClosed(transport string) {
	m.sessionsTotal.WithLabelValues(transport, "closed").Inc()
}

func (m *syncMetrics) RecordRateLimited(transport string) {
	m.rateLimited.WithLabelValues(transport).Inc()
}

func (m *syncMetrics) RecordBytes(transport string, direction string, n int) {
	m.bytesTotal.WithLabelValues(transport, direction).Add(float64(n))
}

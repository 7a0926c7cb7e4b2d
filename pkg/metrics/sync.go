package metrics

import "time"

// SyncMetrics provides observability for the synchronization engine, the
// session registry and the transports.
//
// Implementations must be safe for concurrent use. Components receiving a
// nil SyncMetrics substitute NewNoopSyncMetrics().
type SyncMetrics interface {
	// RecordOperation records a completed operation with its outcome
	// ("ok", "not_found", "already_exists", "invalid_name", "io_failure").
	RecordOperation(operation string, outcome string, duration time.Duration)

	// RecordBroadcast records the fan-out of one broadcast.
	RecordBroadcast(recipients int)

	// RecordMessageDropped counts outbound messages that were not delivered
	// ("disconnected", "queue_full", "encode").
	RecordMessageDropped(reason string)

	// SetActiveSessions updates the live session gauge for a transport.
	SetActiveSessions(transport string, count int32)

	// RecordSessionOpened increments the opened-sessions counter.
	RecordSessionOpened(transport string)

	// RecordSessionClosed increments the closed-sessions counter.
	RecordSessionClosed(transport string)

	// RecordRateLimited counts operations that had to wait for a token.
	RecordRateLimited(transport string)

	// RecordBytes counts wire bytes ("in" or "out").
	RecordBytes(transport string, direction string, n int)
}

type noopSyncMetrics struct{}

// NewNoopSyncMetrics returns a SyncMetrics that discards everything.
func NewNoopSyncMetrics() SyncMetrics {
	return noopSyncMetrics{}
}

func (noopSyncMetrics) RecordOperation(string, string, time.Duration) {}
func (noopSyncMetrics) RecordBroadcast(int)                            {}
func (noopSyncMetrics) RecordMessageDropped(string)                    {}
func (noopSyncMetrics) SetActiveSessions(string, int32)                {}
func (noopSyncMetrics) RecordSessionOpened(string)                     {}
func (noopSyncMetrics) RecordSessionClosed(string)                     {}
func (noopSyncMetrics) RecordRateLimited(string)                       {}
func (noopSyncMetrics) RecordBytes(string, string, int)                {}

// OrNoop returns m, or the no-op collector when m is nil.
func OrNoop(m SyncMetrics) SyncMetrics {
	if m == nil {
		return NewNoopSyncMetrics()
	}
	return m
}

package session

import (
	"errors"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/metrics"
	"github.com/marmos91/dittosync/pkg/protocol"
	"github.com/puzpuzpuz/xsync/v4"
)

// Registry is the set of live sessions and the broadcast primitives over it.
//
// Thread safety:
// Register/Unregister may run concurrently with SendTo and BroadcastExcept.
// A session unregistered while a broadcast is in progress either receives
// the message before Unregister returns or not at all; in both cases no
// error is surfaced. Per-recipient FIFO order holds for messages sent from
// a single goroutine (the engine serializes its sends).
type Registry struct {
	sessions *xsync.Map[string, *Session]
	metrics  metrics.SyncMetrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m metrics.SyncMetrics) *Registry {
	return &Registry{
		sessions: xsync.NewMap[string, *Session](),
		metrics:  metrics.OrNoop(m),
	}
}

// Register adds a session.
func (r *Registry) Register(s *Session) {
	r.sessions.Store(s.ID(), s)
	logger.Debug("Session registered: %s (active: %d)", s, r.sessions.Size())
}

// Unregister removes a session. Idempotent; returns whether the session was
// registered.
func (r *Registry) Unregister(s *Session) bool {
	_, removed := r.sessions.LoadAndDelete(s.ID())
	if removed {
		logger.Debug("Session unregistered: %s (active: %d)", s, r.sessions.Size())
	}
	return removed
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, bool) {
	return r.sessions.Load(id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Range calls fn for each registered session until fn returns false.
func (r *Registry) Range(fn func(*Session) bool) {
	r.sessions.Range(func(_ string, s *Session) bool {
		return fn(s)
	})
}

// SendTo delivers msg to exactly one session.
//
// Delivery to a session that is no longer registered is silently dropped.
// Returns whether the message was queued.
func (r *Registry) SendTo(s *Session, msg protocol.Message) bool {
	if cur, ok := r.sessions.Load(s.ID()); !ok || cur != s {
		r.metrics.RecordMessageDropped("disconnected")
		return false
	}

	frame, err := protocol.Encode(msg)
	if err != nil {
		logger.Error("Failed to encode %s for %s: %v", msg.Type(), s, err)
		r.metrics.RecordMessageDropped("encode")
		return false
	}
	return r.deliver(s, frame)
}

// BroadcastExcept delivers msg to every registered session other than
// origin (which may be nil to broadcast to everyone). The message is encoded
// once and shared by all recipients.
//
// Returns the number of sessions the message was queued for.
func (r *Registry) BroadcastExcept(origin *Session, msg protocol.Message) int {
	frame, err := protocol.Encode(msg)
	if err != nil {
		logger.Error("Failed to encode %s broadcast: %v", msg.Type(), err)
		r.metrics.RecordMessageDropped("encode")
		return 0
	}

	delivered := 0
	r.sessions.Range(func(_ string, s *Session) bool {
		if s == origin {
			return true
		}
		if r.deliver(s, frame) {
			delivered++
		}
		return true
	})

	r.metrics.RecordBroadcast(delivered)
	return delivered
}

// CloseAll closes every session. Transports observe Done and tear down their
// connections, unregistering as they go.
func (r *Registry) CloseAll() {
	r.sessions.Range(func(_ string, s *Session) bool {
		s.Close()
		return true
	})
}

func (r *Registry) deliver(s *Session, frame []byte) bool {
	err := s.Enqueue(frame)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrQueueFull):
		logger.Warn("Session %s outbox overflowed; disconnecting slow client", s)
		r.metrics.RecordMessageDropped("queue_full")
	default:
		r.metrics.RecordMessageDropped("disconnected")
	}
	return false
}

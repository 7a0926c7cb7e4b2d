// Package session tracks connected clients and delivers messages to them.
//
// A Session is transport-agnostic: it owns a bounded FIFO outbox that the
// transport's write pump drains onto the wire. Producers (the engine, via the
// Registry) never block on a slow client; a client whose outbox overflows is
// disconnected instead of silently losing messages from the middle of its
// stream.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueSize is the outbox capacity used when none is configured.
const DefaultQueueSize = 256

var (
	// ErrClosed indicates the session has been closed.
	ErrClosed = errors.New("session closed")

	// ErrQueueFull indicates the outbox overflowed; the session is closed as
	// a consequence.
	ErrQueueFull = errors.New("session outbox full")
)

// Session is one live client connection.
type Session struct {
	id          string
	transport   string
	remoteAddr  string
	connectedAt time.Time

	outbox    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	closeErr error
}

// New creates a session with a fresh random ID.
//
// transport names the adapter ("websocket", "tcp") and remoteAddr the peer,
// both used only for logging and metrics.
func New(transport, remoteAddr string, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Session{
		id:          uuid.NewString(),
		transport:   transport,
		remoteAddr:  remoteAddr,
		connectedAt: time.Now(),
		outbox:      make(chan []byte, queueSize),
		done:        make(chan struct{}),
	}
}

// ID returns the opaque session handle.
func (s *Session) ID() string { return s.id }

// Transport returns the name of the adapter serving the session.
func (s *Session) Transport() string { return s.transport }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// ConnectedAt returns when the session was created.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// String returns "<transport>/<id> (<addr>)" for log lines.
func (s *Session) String() string {
	return s.transport + "/" + s.id + " (" + s.remoteAddr + ")"
}

// Enqueue appends an encoded frame to the outbox without blocking.
//
// Returns ErrClosed if the session is closed, or ErrQueueFull if the outbox
// is at capacity, in which case the session is closed.
func (s *Session) Enqueue(frame []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.outbox <- frame:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		s.CloseWithError(ErrQueueFull)
		return ErrQueueFull
	}
}

// Outbox is drained by the transport's write pump. It is never closed;
// pumps select on Done as well.
func (s *Session) Outbox() <-chan []byte {
	return s.outbox
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close marks the session closed. Idempotent.
func (s *Session) Close() {
	s.CloseWithError(nil)
}

// CloseWithError closes the session recording why. Only the first call
// has an effect.
func (s *Session) CloseWithError(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeErr = err
		s.mu.Unlock()
		close(s.done)
	})
}

// Err returns the reason the session was closed, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

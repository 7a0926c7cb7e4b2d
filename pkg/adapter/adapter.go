// Package adapter defines the interface implemented by every DittoSync
// transport.
//
// An adapter owns a listener and the connections accepted on it. For each
// connection it creates a session through the engine, decodes inbound frames
// into operations, and drains the session's outbox onto the wire. All file
// semantics live in the engine; adapters only move bytes.
package adapter

import (
	"context"

	"github.com/marmos91/dittosync/pkg/engine"
)

// Adapter is a network transport managed by server.SyncServer.
//
// Lifecycle:
//  1. SetEngine is called once.
//  2. Serve is called in its own goroutine and blocks until ctx is cancelled.
//  3. Stop may be called concurrently with Serve during shutdown.
type Adapter interface {
	// Serve starts the listener and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Let active connections flush their outbox (with timeout)
	//   - Clean up resources
	//
	// If Serve returns before context cancellation, SyncServer treats it as
	// a fatal error and stops all other adapters.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if startup fails or shutdown timed out
	Serve(ctx context.Context) error

	// SetEngine injects the synchronization engine shared by all adapters.
	//
	// Thread safety:
	// Called before Serve(), no synchronization needed.
	SetEngine(e *engine.Engine)

	// Stop initiates graceful shutdown. Idempotent and safe to call
	// concurrently with Serve. ctx bounds how long Stop waits for
	// connections to finish.
	Stop(ctx context.Context) error

	// Protocol returns the transport name used in logs and metric labels,
	// e.g. "websocket" or "tcp".
	Protocol() string

	// Port returns the port the adapter listens on. Once Serve has bound
	// its listener this is the actual port, even when 0 was configured.
	Port() int
}

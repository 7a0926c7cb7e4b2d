package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/adapter"
	"github.com/marmos91/dittosync/pkg/engine"
)

// DefaultStopTimeout bounds how long Serve waits for adapters to stop.
const DefaultStopTimeout = 30 * time.Second

// SyncServer manages the lifecycle of the transport adapters that share one
// synchronization engine.
//
// Architecture:
// Every transport (websocket, tcp) is an adapter.Adapter. All of them feed
// the same engine, so a browser on the websocket transport and a CLI client
// on raw TCP see each other's edits.
//
// Lifecycle:
//  1. Creation: New() with the engine
//  2. Registration: AddAdapter() for each transport
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: context cancellation stops the adapters in reverse order
//
// Example usage:
//
//	srv := server.New(eng, 30*time.Second)
//	srv.AddAdapter(websocket.New(wsConfig, rateLimit, m))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type SyncServer struct {
	engine      *engine.Engine
	stopTimeout time.Duration

	// mu protects adapters
	mu       sync.RWMutex
	adapters []adapter.Adapter

	served atomic.Bool
}

// New creates a server around eng. stopTimeout bounds adapter shutdown;
// zero uses DefaultStopTimeout.
//
// Panics if eng is nil.
func New(eng *engine.Engine, stopTimeout time.Duration) *SyncServer {
	if eng == nil {
		panic("engine cannot be nil")
	}
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &SyncServer{
		engine:      eng,
		stopTimeout: stopTimeout,
		adapters:    make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter injects the engine into a and registers it.
//
// Returns an error when another adapter already serves the same protocol or
// a fixed port. Adapters configured with port 0 pick a free port and never
// conflict.
//
// Panics if a is nil or Serve() has already been called.
func (s *SyncServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served.Load() {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetEngine(s.engine)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// On shutdown every adapter receives Stop() in reverse registration order,
// then every remaining session is closed. Serve waits for all adapter
// goroutines before returning.
//
// Returns:
//   - ctx.Err() when shutdown was triggered by the context
//   - the first adapter error otherwise
//
// Panics if called more than once.
func (s *SyncServer) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		panic("Serve() has already been called on this server instance")
	}

	s.mu.RLock()
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.RUnlock()

	if len(adapters) == 0 {
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}

	logger.Info("Starting DittoSync with %d adapter(s)", len(adapters))

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
				} else {
					logger.Debug("%s adapter stopped: %v", protocol, err)
				}
				return
			}

			if ctx.Err() == nil {
				errChan <- adapterError{protocol: protocol, err: errors.New("stopped unexpectedly")}
				return
			}
			logger.Info("%s adapter stopped", protocol)
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	s.stopAllAdapters(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	s.engine.Sessions().CloseAll()
	logger.Info("DittoSync stopped")

	return shutdownErr
}

type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters stops adapters in reverse registration order, sharing one
// stopTimeout deadline between them.
func (s *SyncServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *SyncServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

// Engine returns the shared engine.
func (s *SyncServer) Engine() *engine.Engine {
	return s.engine
}

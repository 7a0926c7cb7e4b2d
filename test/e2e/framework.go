package e2e

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/internal/ratelimiter"
	"github.com/marmos91/dittosync/pkg/adapter/tcp"
	"github.com/marmos91/dittosync/pkg/adapter/websocket"
	"github.com/marmos91/dittosync/pkg/config"
	"github.com/marmos91/dittosync/pkg/engine"
	"github.com/marmos91/dittosync/pkg/server"
	"github.com/marmos91/dittosync/pkg/session"
	"github.com/marmos91/dittosync/pkg/store"
)

// TestContext provides a complete testing environment with:
// - A running DittoSync server with both transports on free ports
// - The configured file store
// - Client constructors for each transport
// - Cleanup mechanisms
type TestContext struct {
	T         testing.TB
	Config    *TestConfig
	Engine    engine.Config
	Server    *server.SyncServer
	Store     store.Store
	WebSocket *websocket.WebSocketAdapter
	TCP       *tcp.TCPAdapter

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	tempDirs []string
}

// NewTestContext creates a new test environment with the specified
// configuration and starts the server.
func NewTestContext(t testing.TB, cfg *TestConfig) *TestContext {
	return NewTestContextWithEngine(t, cfg, engine.Config{})
}

// NewTestContextWithEngine is NewTestContext with explicit engine settings.
func NewTestContextWithEngine(t testing.TB, cfg *TestConfig, engineCfg engine.Config) *TestContext {
	t.Helper()

	tc := &TestContext{
		T:      t,
		Config: cfg,
		Engine: engineCfg,
	}
	tc.start()
	return tc
}

// start opens the store and serves both adapters.
func (tc *TestContext) start() {
	tc.T.Helper()

	// Functional tests, not debugging sessions
	logger.SetLevel("ERROR")

	tc.ctx, tc.cancel = context.WithCancel(context.Background())

	storeCfg, err := tc.Config.StoreConfig(tc)
	if err != nil {
		tc.T.Fatalf("Failed to build store config: %v", err)
	}

	tc.Store, err = config.CreateStore(tc.ctx, storeCfg)
	if err != nil {
		tc.T.Fatalf("Failed to create %s store: %v", tc.Config, err)
	}

	eng := engine.New(tc.Store, session.NewRegistry(nil), tc.Engine, nil)
	tc.Server = server.New(eng, 10*time.Second)

	tc.WebSocket = websocket.New(websocket.WebSocketConfig{
		Enabled:         true,
		ShutdownTimeout: 5 * time.Second,
	}, ratelimiter.Config{}, nil)
	tc.TCP = tcp.New(tcp.TCPConfig{
		Enabled:         true,
		ShutdownTimeout: 5 * time.Second,
	}, ratelimiter.Config{}, nil)

	if err := tc.Server.AddAdapter(tc.WebSocket); err != nil {
		tc.T.Fatalf("Failed to add websocket adapter: %v", err)
	}
	if err := tc.Server.AddAdapter(tc.TCP); err != nil {
		tc.T.Fatalf("Failed to add tcp adapter: %v", err)
	}

	tc.wg.Add(1)
	go func() {
		defer tc.wg.Done()
		if err := tc.Server.Serve(tc.ctx); err != nil && !errors.Is(err, context.Canceled) {
			tc.T.Logf("Server error: %v", err)
		}
	}()

	tc.waitForServer()
}

// waitForServer waits until both adapters accept connections.
func (tc *TestContext) waitForServer() {
	tc.T.Helper()

	timeout := time.After(10 * time.Second)
	for _, ready := range []<-chan struct{}{tc.WebSocket.Ready(), tc.TCP.Ready()} {
		select {
		case <-ready:
		case <-timeout:
			tc.T.Fatal("Timeout waiting for server to start")
		}
	}
}

// stop shuts the server down and closes the store.
func (tc *TestContext) stop() {
	if tc.cancel != nil {
		tc.cancel()
	}
	tc.wg.Wait()

	if tc.Store != nil {
		_ = tc.Store.Close()
		tc.Store = nil
	}
}

// Restart stops the server and starts a new one on the same store data.
// Existing clients are disconnected.
func (tc *TestContext) Restart() {
	tc.T.Helper()
	tc.stop()
	tc.start()
}

// Cleanup stops the server, closes the store, and removes temporary files
func (tc *TestContext) Cleanup() {
	tc.T.Helper()
	tc.stop()

	for _, dir := range tc.tempDirs {
		_ = os.RemoveAll(dir)
	}
}

// CreateTempDir creates a temporary directory and registers it for cleanup
func (tc *TestContext) CreateTempDir(prefix string) string {
	tc.T.Helper()

	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		tc.T.Fatalf("Failed to create temp directory: %v", err)
	}
	tc.tempDirs = append(tc.tempDirs, dir)
	return dir
}

// GetConfig returns the test configuration
func (tc *TestContext) GetConfig() *TestConfig {
	return tc.Config
}

// Sessions returns the number of connected sessions.
func (tc *TestContext) Sessions() int {
	return tc.Server.Engine().Sessions().Len()
}

// WaitForSessions blocks until exactly n sessions are connected.
func (tc *TestContext) WaitForSessions(n int) {
	tc.T.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if tc.Sessions() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	tc.T.Fatalf("Expected %d sessions, have %d", n, tc.Sessions())
}

// Package websocket implements the browser-facing transport.
//
// Clients connect to Path (default "/ws") and exchange JSON envelopes as
// text frames, one envelope per frame. When StaticDir is set the same HTTP
// server also serves the client application at "/".
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/internal/ratelimiter"
	"github.com/marmos91/dittosync/pkg/engine"
	"github.com/marmos91/dittosync/pkg/metrics"
	"github.com/puzpuzpuz/xsync/v4"
)

// Protocol is the transport name used in logs and metric labels.
const Protocol = "websocket"

// WebSocketConfig holds configuration for the websocket adapter.
//
// Default values (applied by New if zero):
//   - Path: /ws
//   - ReadLimit: 1MiB
//   - PingInterval: 30s
//   - PongTimeout: 60s
//   - WriteTimeout: 10s
//   - ShutdownTimeout: 10s
type WebSocketConfig struct {
	// Enabled controls whether the websocket adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port to listen on. 0 picks a free port when set
	// programmatically; configuration defaults it to 9010.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// Path is the HTTP path upgraded to websocket.
	Path string `mapstructure:"path" validate:"omitempty,startswith=/" yaml:"path"`

	// StaticDir, when set, is served at "/" for the browser client.
	StaticDir string `mapstructure:"static_dir" yaml:"static_dir"`

	// AllowedOrigins restricts the Origin header of upgrade requests.
	// Empty accepts any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	// MaxConnections limits concurrent clients. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0" yaml:"max_connections"`

	// ReadLimit bounds one inbound frame in bytes.
	ReadLimit int64 `mapstructure:"read_limit" validate:"min=0" yaml:"read_limit"`

	// PingInterval is how often the server pings idle clients.
	PingInterval time.Duration `mapstructure:"ping_interval" validate:"min=0" yaml:"ping_interval"`

	// PongTimeout closes connections that answer no ping for this long.
	// Must exceed PingInterval.
	PongTimeout time.Duration `mapstructure:"pong_timeout" validate:"min=0" yaml:"pong_timeout"`

	// WriteTimeout bounds writing one frame.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0" yaml:"write_timeout"`

	// ShutdownTimeout is how long Stop waits for connections to drain.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0" yaml:"shutdown_timeout"`
}

// ApplyDefaults fills in zero values.
func (c *WebSocketConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "/ws"
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 1 << 20
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 2 * c.PingInterval
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

func (c *WebSocketConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.PongTimeout <= c.PingInterval {
		return fmt.Errorf("invalid PongTimeout %v: must exceed PingInterval %v", c.PongTimeout, c.PingInterval)
	}
	return nil
}

// WebSocketAdapter implements adapter.Adapter over websocket.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. HTTP listener closed (no new upgrades)
//  3. Every session is closed; write pumps flush what is queued and send a
//     close frame
//  4. Wait for connections to finish (up to ShutdownTimeout)
//  5. Force-close remaining connections
type WebSocketAdapter struct {
	config    WebSocketConfig
	rateLimit ratelimiter.Config

	engine  *engine.Engine
	metrics metrics.SyncMetrics

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener
	ready      chan struct{}
	port       atomic.Int32

	activeConns  sync.WaitGroup
	connCount    atomic.Int32
	shutdownOnce sync.Once
	shutdown     chan struct{}

	// connSemaphore limits concurrent connections when MaxConnections > 0
	connSemaphore chan struct{}

	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	connections *xsync.Map[string, *WebSocketConnection]
}

// New creates a websocket adapter in a stopped state. Call SetEngine, then
// Serve. m may be nil.
//
// Panics if config validation fails.
func New(config WebSocketConfig, rateLimit ratelimiter.Config, m metrics.SyncMetrics) *WebSocketAdapter {
	config.ApplyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid websocket config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	a := &WebSocketAdapter{
		config:         config,
		rateLimit:      rateLimit,
		metrics:        metrics.OrNoop(m),
		ready:          make(chan struct{}),
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		connections:    xsync.NewMap[string, *WebSocketConnection](),
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     a.checkOrigin,
	}
	a.httpServer = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

// SetEngine injects the synchronization engine.
func (a *WebSocketAdapter) SetEngine(e *engine.Engine) {
	a.engine = e
	logger.Debug("WebSocket engine configured")
}

// Handler returns the HTTP handler serving the websocket endpoint and, when
// configured, the static client. Exposed for embedding and tests.
func (a *WebSocketAdapter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(a.config.Path, a.handleUpgrade)
	if a.config.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(a.config.StaticDir)))
	}
	return mux
}

// Serve listens on the configured port and serves until ctx is cancelled or
// Stop is called.
func (a *WebSocketAdapter) Serve(ctx context.Context) error {
	if a.engine == nil {
		return fmt.Errorf("websocket adapter: engine not configured")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create websocket listener on port %d: %w", a.config.Port, err)
	}
	a.listener = listener
	a.port.Store(int32(listener.Addr().(*net.TCPAddr).Port))
	close(a.ready)

	logger.Info("WebSocket server listening on port %d (path %s)", a.Port(), a.config.Path)
	if a.config.StaticDir != "" {
		logger.Info("Serving static client from %s", a.config.StaticDir)
	}

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("WebSocket shutdown signal received: %v", ctx.Err())
		case <-a.shutdown:
		}
		a.initiateShutdown()
	}()

	err = a.httpServer.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.initiateShutdown()
		return fmt.Errorf("websocket server error: %w", err)
	}

	return a.gracefulShutdown()
}

func (a *WebSocketAdapter) checkOrigin(r *http.Request) bool {
	if len(a.config.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(a.config.AllowedOrigins, r.Header.Get("Origin"))
}

// handleUpgrade accepts one websocket connection and serves it until it
// closes.
func (a *WebSocketAdapter) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	select {
	case <-a.shutdown:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	if a.connSemaphore != nil {
		select {
		case a.connSemaphore <- struct{}{}:
		default:
			logger.Warn("WebSocket connection from %s rejected: limit of %d reached",
				r.RemoteAddr, a.config.MaxConnections)
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
	}

	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		logger.Debug("WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
		if a.connSemaphore != nil {
			<-a.connSemaphore
		}
		return
	}

	a.activeConns.Add(1)
	current := a.connCount.Add(1)

	conn := newWebSocketConnection(a, ws, r.RemoteAddr)
	key := conn.session.ID()
	a.connections.Store(key, conn)

	a.metrics.RecordSessionOpened(Protocol)
	a.metrics.SetActiveSessions(Protocol, current)
	logger.Debug("WebSocket connection accepted from %s (active: %d)", r.RemoteAddr, current)

	defer func() {
		a.connections.Delete(key)
		a.activeConns.Done()
		current := a.connCount.Add(-1)
		if a.connSemaphore != nil {
			<-a.connSemaphore
		}

		a.metrics.RecordSessionClosed(Protocol)
		a.metrics.SetActiveSessions(Protocol, current)
		logger.Debug("WebSocket connection closed from %s (active: %d)", r.RemoteAddr, current)
	}()

	// Close the session if shutdown started between the check above and
	// the Store, so it is not missed by initiateShutdown.
	select {
	case <-a.shutdown:
		conn.session.Close()
	default:
	}

	conn.Serve(a.shutdownCtx)
}

func (a *WebSocketAdapter) initiateShutdown() {
	a.shutdownOnce.Do(func() {
		logger.Debug("WebSocket shutdown initiated")
		close(a.shutdown)

		// Close stops the listener; hijacked websocket connections are not
		// tracked by http.Server and are drained below.
		if err := a.httpServer.Close(); err != nil {
			logger.Debug("Error closing websocket HTTP server: %v", err)
		}

		a.cancelRequests()
		a.connections.Range(func(_ string, c *WebSocketConnection) bool {
			c.session.Close()
			return true
		})
	})
}

func (a *WebSocketAdapter) gracefulShutdown() error {
	logger.Info("WebSocket graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		a.connCount.Load(), a.config.ShutdownTimeout)

	select {
	case <-a.waitConnections():
		logger.Info("WebSocket graceful shutdown complete: all connections closed")
		return nil
	case <-time.After(a.config.ShutdownTimeout):
		remaining := a.connCount.Load()
		logger.Warn("WebSocket shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, a.config.ShutdownTimeout)
		a.forceCloseConnections()
		return fmt.Errorf("websocket shutdown timeout: %d connections force-closed", remaining)
	}
}

func (a *WebSocketAdapter) waitConnections() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		a.activeConns.Wait()
		close(done)
	}()
	return done
}

func (a *WebSocketAdapter) forceCloseConnections() {
	closed := 0
	a.connections.Range(func(_ string, c *WebSocketConnection) bool {
		if err := c.ws.Close(); err == nil {
			closed++
		}
		return true
	})
	if closed > 0 {
		logger.Info("Force-closed %d websocket connection(s)", closed)
	}
}

// Stop initiates graceful shutdown and waits for connections to finish or
// ctx to expire.
func (a *WebSocketAdapter) Stop(ctx context.Context) error {
	a.initiateShutdown()

	if ctx == nil {
		return a.gracefulShutdown()
	}

	select {
	case <-a.waitConnections():
		return nil
	case <-ctx.Done():
		logger.Warn("WebSocket shutdown context cancelled: %d connection(s) still active: %v",
			a.connCount.Load(), ctx.Err())
		a.forceCloseConnections()
		return ctx.Err()
	}
}

// Ready is closed once the listener is bound.
func (a *WebSocketAdapter) Ready() <-chan struct{} {
	return a.ready
}

// Addr returns the listener address, or nil before Serve bound it.
func (a *WebSocketAdapter) Addr() net.Addr {
	select {
	case <-a.ready:
		return a.listener.Addr()
	default:
		return nil
	}
}

// ActiveConnections returns the number of live connections.
func (a *WebSocketAdapter) ActiveConnections() int32 {
	return a.connCount.Load()
}

// Port returns the bound port once listening, the configured one before.
func (a *WebSocketAdapter) Port() int {
	if p := a.port.Load(); p != 0 {
		return int(p)
	}
	return a.config.Port
}

// Protocol returns "websocket".
func (a *WebSocketAdapter) Protocol() string {
	return Protocol
}

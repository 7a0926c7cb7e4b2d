// Package tcp implements a raw TCP transport for non-browser clients.
//
// Each message is one JSON envelope framed with record-marking headers (see
// ReadMessage). The connection lifecycle mirrors the websocket adapter: one
// session per connection, a read loop feeding the engine, and a write pump
// draining the session outbox.
package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/internal/ratelimiter"
	"github.com/marmos91/dittosync/pkg/engine"
	"github.com/marmos91/dittosync/pkg/metrics"
	"github.com/puzpuzpuz/xsync/v4"
)

// Protocol is the transport name used in logs and metric labels.
const Protocol = "tcp"

// TCPAdapter implements adapter.Adapter over plain TCP.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Every session is closed; write pumps flush what is queued and close
//     their sockets, which ends the read loops
//  4. Wait for active connections to complete (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once to ensure idempotent behavior even if Stop() is called
// multiple times.
type TCPAdapter struct {
	config    TCPConfig
	rateLimit ratelimiter.Config

	engine  *engine.Engine
	metrics metrics.SyncMetrics

	// listener is closed during shutdown to stop accepting new connections
	listener net.Listener

	// ready is closed once the listener is bound
	ready chan struct{}

	// port is the bound port, which differs from config.Port when 0 was
	// configured
	port atomic.Int32

	activeConns  sync.WaitGroup
	connCount    atomic.Int32
	shutdownOnce sync.Once
	shutdown     chan struct{}

	// connSemaphore limits concurrent connections when MaxConnections > 0
	connSemaphore chan struct{}

	// shutdownCtx is cancelled during shutdown and passed to every connection
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// connections tracks live connections by remote address for shutdown
	connections *xsync.Map[string, *TCPConnection]
}

// TCPConfig holds configuration for the TCP adapter.
//
// Default values (applied by New if zero):
//   - Port: 9011
//   - MaxMessageSize: 1MiB
//   - Timeouts.Write: 10s
//   - Timeouts.Idle: 5m
//   - ShutdownTimeout: 10s
type TCPConfig struct {
	// Enabled controls whether the TCP adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port to listen on. 0 picks a free port when set
	// programmatically; configuration defaults it to 9011.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// MaxConnections limits concurrent clients. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0" yaml:"max_connections"`

	// MaxMessageSize bounds one reassembled message in bytes.
	MaxMessageSize int `mapstructure:"max_message_size" validate:"min=0" yaml:"max_message_size"`

	// Timeouts groups per-connection deadlines.
	Timeouts TCPTimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`

	// ShutdownTimeout is how long Stop waits for connections to drain before
	// force-closing them.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0" yaml:"shutdown_timeout"`

	// MetricsLogInterval periodically logs the active connection count.
	// 0 disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0" yaml:"metrics_log_interval"`
}

// TCPTimeoutsConfig groups the TCP connection deadlines.
type TCPTimeoutsConfig struct {
	// Read bounds reading one message once its first header arrived.
	// 0 disables it.
	Read time.Duration `mapstructure:"read" validate:"min=0" yaml:"read"`

	// Write bounds writing one outbound message.
	Write time.Duration `mapstructure:"write" validate:"min=0" yaml:"write"`

	// Idle closes connections that send nothing for this long. 0 keeps
	// them open indefinitely.
	Idle time.Duration `mapstructure:"idle" validate:"min=0" yaml:"idle"`
}

// ApplyDefaults fills in zero values.
func (c *TCPConfig) ApplyDefaults() {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 1 << 20
	}
	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = 10 * time.Second
	}
	if c.Timeouts.Idle == 0 {
		c.Timeouts.Idle = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

func (c *TCPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("invalid MaxMessageSize %d: must be >= 0", c.MaxMessageSize)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// New creates a TCP adapter in a stopped state. Call SetEngine, then Serve.
//
// Each connection gets its own rate limiter built from rateLimit; a zero
// rate disables limiting. m may be nil.
//
// Panics if config validation fails.
func New(config TCPConfig, rateLimit ratelimiter.Config, m metrics.SyncMetrics) *TCPAdapter {
	config.ApplyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid TCP config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("TCP connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("TCP connection limit: unlimited")
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &TCPAdapter{
		config:         config,
		rateLimit:      rateLimit,
		metrics:        metrics.OrNoop(m),
		ready:          make(chan struct{}),
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		connections:    xsync.NewMap[string, *TCPConnection](),
	}
}

// SetEngine injects the synchronization engine.
func (s *TCPAdapter) SetEngine(e *engine.Engine) {
	s.engine = e
	logger.Debug("TCP engine configured")
}

// Serve listens on the configured port and serves connections until ctx is
// cancelled or Stop is called.
func (s *TCPAdapter) Serve(ctx context.Context) error {
	if s.engine == nil {
		return fmt.Errorf("TCP adapter: engine not configured")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create TCP listener on port %d: %w", s.config.Port, err)
	}

	s.listener = listener
	s.port.Store(int32(listener.Addr().(*net.TCPAddr).Port))
	close(s.ready)

	logger.Info("TCP server listening on port %d", s.Port())
	logger.Debug("TCP config: max_connections=%d max_message_size=%d read_timeout=%v write_timeout=%v idle_timeout=%v",
		s.config.MaxConnections, s.config.MaxMessageSize,
		s.config.Timeouts.Read, s.config.Timeouts.Write, s.config.Timeouts.Idle)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("TCP shutdown signal received: %v", ctx.Err())
		case <-s.shutdown:
		}
		s.initiateShutdown()
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := s.listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting TCP connection: %v", err)
				continue
			}
		}

		s.activeConns.Add(1)
		current := s.connCount.Add(1)

		conn := newTCPConnection(s, tcpConn)
		connAddr := tcpConn.RemoteAddr().String()
		s.connections.Store(connAddr, conn)

		s.metrics.RecordSessionOpened(Protocol)
		s.metrics.SetActiveSessions(Protocol, current)
		logger.Debug("TCP connection accepted from %s (active: %d)", connAddr, current)

		go func(addr string) {
			defer func() {
				s.connections.Delete(addr)
				s.activeConns.Done()
				current := s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordSessionClosed(Protocol)
				s.metrics.SetActiveSessions(Protocol, current)
				logger.Debug("TCP connection closed from %s (active: %d)", addr, current)
			}()

			conn.Serve(s.shutdownCtx)
		}(connAddr)
	}
}

// initiateShutdown closes the listener and every session. Safe to call
// multiple times.
func (s *TCPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("TCP shutdown initiated")
		close(s.shutdown)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing TCP listener: %v", err)
			}
		}

		s.cancelRequests()
		s.connections.Range(func(_ string, c *TCPConnection) bool {
			c.session.Close()
			return true
		})
	})
}

// gracefulShutdown waits for active connections up to ShutdownTimeout and
// force-closes whatever remains.
func (s *TCPAdapter) gracefulShutdown() error {
	logger.Info("TCP graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		s.connCount.Load(), s.config.ShutdownTimeout)

	select {
	case <-s.waitConnections():
		logger.Info("TCP graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("TCP shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)
		s.forceCloseConnections()
		return fmt.Errorf("TCP shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *TCPAdapter) waitConnections() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

func (s *TCPAdapter) forceCloseConnections() {
	closed := 0
	s.connections.Range(func(addr string, c *TCPConnection) bool {
		if err := c.conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closed++
		}
		return true
	})
	if closed > 0 {
		logger.Info("Force-closed %d TCP connection(s)", closed)
	}
}

// Stop initiates graceful shutdown and waits for connections to finish or
// ctx to expire.
func (s *TCPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	select {
	case <-s.waitConnections():
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("TCP shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

func (s *TCPAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("TCP metrics: active_connections=%d", s.connCount.Load())
		}
	}
}

// Ready is closed once the listener is bound.
func (s *TCPAdapter) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listener address, or nil before Serve bound it.
func (s *TCPAdapter) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.listener.Addr()
	default:
		return nil
	}
}

// ActiveConnections returns the number of live connections.
func (s *TCPAdapter) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the bound port once listening, the configured one before.
func (s *TCPAdapter) Port() int {
	if p := s.port.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Protocol returns "tcp".
func (s *TCPAdapter) Protocol() string {
	return Protocol
}

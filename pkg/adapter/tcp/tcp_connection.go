package tcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/internal/ratelimiter"
	"github.com/marmos91/dittosync/pkg/session"
)

// TCPConnection serves one client socket.
type TCPConnection struct {
	server  *TCPAdapter
	conn    net.Conn
	reader  *bufio.Reader
	session *session.Session
	limiter *ratelimiter.Limiter
}

func newTCPConnection(server *TCPAdapter, conn net.Conn) *TCPConnection {
	return &TCPConnection{
		server:  server,
		conn:    conn,
		reader:  bufio.NewReader(conn),
		session: server.engine.Connect(Protocol, conn.RemoteAddr().String()),
		limiter: ratelimiter.New(server.rateLimit),
	}
}

// Serve runs the read loop until the client disconnects, the session is
// closed, or the server shuts down. A panic is recovered and only this
// connection is torn down.
func (c *TCPConnection) Serve(ctx context.Context) {
	clientAddr := c.conn.RemoteAddr().String()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		c.writePump(ctx)
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in TCP connection handler from %s: %v", clientAddr, r)
		}
		c.server.engine.Disconnect(c.session)
		<-pumpDone
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("TCP connection from %s closed due to server shutdown", clientAddr)
			return
		case <-c.session.Done():
			logger.Debug("TCP session %s closed: %v", c.session, c.session.Err())
			return
		default:
		}

		if err := c.handleMessage(ctx); err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF):
				logger.Debug("TCP connection from %s closed by client", clientAddr)
			case errors.As(err, &netErr) && netErr.Timeout():
				logger.Debug("TCP connection from %s timed out: %v", clientAddr, err)
			case errors.Is(err, ErrMessageTooLarge):
				logger.Warn("TCP connection from %s sent oversized message: %v", clientAddr, err)
			case errors.Is(err, net.ErrClosed), errors.Is(err, context.Canceled):
				logger.Debug("TCP connection from %s closed: %v", clientAddr, err)
			default:
				logger.Debug("Error reading from %s: %v", clientAddr, err)
			}
			return
		}
	}
}

// handleMessage reads one framed message and hands it to the engine.
func (c *TCPConnection) handleMessage(ctx context.Context) error {
	if idle := c.server.config.Timeouts.Idle; idle > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
			return err
		}
	}

	// Wait for the first byte under the idle deadline, then switch to the
	// read deadline for the rest of the message.
	if _, err := c.reader.Peek(1); err != nil {
		return err
	}
	if read := c.server.config.Timeouts.Read; read > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(read)); err != nil {
			return err
		}
	}

	frame, err := ReadMessage(c.reader, c.server.config.MaxMessageSize)
	if err != nil {
		return err
	}
	c.server.metrics.RecordBytes(Protocol, "in", len(frame))

	throttled, err := c.limiter.Acquire(ctx)
	if err != nil {
		return err
	}
	if throttled {
		c.server.metrics.RecordRateLimited(Protocol)
	}

	c.server.engine.HandleFrame(ctx, c.session, frame)
	return nil
}

// writePump drains the session outbox onto the socket. When the session
// closes it flushes what is already queued, then closes the socket so the
// read loop unblocks.
func (c *TCPConnection) writePump(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in TCP write pump for %s: %v", c.session, r)
		}
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.session.Outbox():
			if err := c.write(frame); err != nil {
				logger.Debug("TCP write to %s failed: %v", c.session, err)
				c.session.CloseWithError(err)
				return
			}
		case <-ctx.Done():
			c.session.Close()
		case <-c.session.Done():
			c.flush()
			return
		}
	}
}

func (c *TCPConnection) flush() {
	for {
		select {
		case frame := <-c.session.Outbox():
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *TCPConnection) write(frame []byte) error {
	if timeout := c.server.config.Timeouts.Write; timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	if err := WriteMessage(c.conn, frame); err != nil {
		return err
	}
	c.server.metrics.RecordBytes(Protocol, "out", len(frame))
	return nil
}

package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/internal/ratelimiter"
	"github.com/marmos91/dittosync/pkg/session"
)

// WebSocketConnection serves one upgraded client.
type WebSocketConnection struct {
	server  *WebSocketAdapter
	ws      *websocket.Conn
	session *session.Session
	limiter *ratelimiter.Limiter
}

func newWebSocketConnection(server *WebSocketAdapter, ws *websocket.Conn, remoteAddr string) *WebSocketConnection {
	return &WebSocketConnection{
		server:  server,
		ws:      ws,
		session: server.engine.Connect(Protocol, remoteAddr),
		limiter: ratelimiter.New(server.rateLimit),
	}
}

// Serve runs the read loop until the client disconnects, the session is
// closed, or the server shuts down. A panic is recovered and only this
// connection is torn down.
func (c *WebSocketConnection) Serve(ctx context.Context) {
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		c.writePump(ctx)
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in websocket connection handler for %s: %v", c.session, r)
		}
		c.server.engine.Disconnect(c.session)
		<-pumpDone
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(c.server.config.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.server.config.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.server.config.PongTimeout))
	})

	for {
		msgType, frame, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				logger.Debug("WebSocket %s closed by client", c.session)
			case errors.Is(err, websocket.ErrReadLimit):
				logger.Warn("WebSocket %s sent a frame over %d bytes", c.session, c.server.config.ReadLimit)
			default:
				logger.Debug("WebSocket %s read ended: %v", c.session, err)
			}
			return
		}

		// Any traffic proves the peer is alive.
		_ = c.ws.SetReadDeadline(time.Now().Add(c.server.config.PongTimeout))

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		c.server.metrics.RecordBytes(Protocol, "in", len(frame))

		throttled, err := c.limiter.Acquire(ctx)
		if err != nil {
			return
		}
		if throttled {
			c.server.metrics.RecordRateLimited(Protocol)
		}

		c.server.engine.HandleFrame(ctx, c.session, frame)
	}
}

// writePump is the only goroutine writing to the socket. It drains the
// outbox, pings on PingInterval, and on session close flushes what is queued
// and sends a close frame, which ends the read loop.
func (c *WebSocketConnection) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.server.config.PingInterval)
	defer func() {
		ticker.Stop()
		if r := recover(); r != nil {
			logger.Error("Panic in websocket write pump for %s: %v", c.session, r)
		}
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.session.Outbox():
			if err := c.write(frame); err != nil {
				logger.Debug("WebSocket write to %s failed: %v", c.session, err)
				c.session.CloseWithError(err)
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.server.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Debug("WebSocket ping to %s failed: %v", c.session, err)
				c.session.CloseWithError(err)
				return
			}

		case <-ctx.Done():
			c.session.Close()

		case <-c.session.Done():
			c.flush()
			c.sendClose()
			return
		}
	}
}

func (c *WebSocketConnection) flush() {
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

func (c *WebSocketConnection) sendClose() {
	code, text := websocket.CloseNormalClosure, ""
	switch {
	case errors.Is(c.session.Err(), session.ErrQueueFull):
		code, text = websocket.ClosePolicyViolation, "client too slow"
	case c.server.shutdownCtx.Err() != nil:
		code, text = websocket.CloseGoingAway, "server shutting down"
	}

	deadline := time.Now().Add(c.server.config.WriteTimeout)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

func (c *WebSocketConnection) write(frame []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return err
	}
	c.server.metrics.RecordBytes(Protocol, "out", len(frame))
	return nil
}

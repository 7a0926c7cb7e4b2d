package e2e

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/marmos91/dittosync/pkg/adapter/tcp"
	"github.com/marmos91/dittosync/pkg/protocol"
)

// recvTimeout bounds every Recv so a missing message fails the test instead
// of hanging it.
const recvTimeout = 5 * time.Second

// Client is a connected DittoSync client, independent of its transport.
type Client interface {
	// Send submits one operation.
	Send(op protocol.Operation)

	// Recv returns the next message, failing the test after recvTimeout.
	Recv() protocol.Message

	// ExpectSilence fails the test if a message arrives within d.
	ExpectSilence(d time.Duration)

	// Close disconnects the client.
	Close()
}

var (
	_ Client = (*WSClient)(nil)
	_ Client = (*TCPClient)(nil)
)

// inbox decouples reading from the test goroutine. A websocket read that
// times out leaves the connection unusable, so frames are read by a
// dedicated goroutine and waited on with timers instead of deadlines.
type inbox struct {
	t        testing.TB
	messages chan protocol.Message
	done     chan struct{}
	err      error
}

func newInbox(t testing.TB, read func() ([]byte, error)) *inbox {
	in := &inbox{
		t:        t,
		messages: make(chan protocol.Message, 64),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(in.done)
		for {
			data, err := read()
			if err != nil {
				in.err = err
				return
			}
			msg, err := protocol.DecodeMessage(data)
			if err != nil {
				in.err = fmt.Errorf("decode %q: %w", data, err)
				return
			}
			in.messages <- msg
		}
	}()

	return in
}

func (in *inbox) recv() protocol.Message {
	in.t.Helper()

	select {
	case msg := <-in.messages:
		return msg
	case <-in.done:
		// Drain anything decoded before the reader stopped
		select {
		case msg := <-in.messages:
			return msg
		default:
		}
		in.t.Fatalf("Connection closed while waiting for a message: %v", in.err)
	case <-time.After(recvTimeout):
		in.t.Fatalf("Timeout waiting for a message")
	}
	return nil
}

func (in *inbox) expectSilence(d time.Duration) {
	in.t.Helper()

	select {
	case msg := <-in.messages:
		in.t.Fatalf("Expected no message, got %s %+v", msg.Type(), msg)
	case <-time.After(d):
	}
}

// ============================================================================
// WebSocket
// ============================================================================

// WSClient speaks to the websocket adapter.
type WSClient struct {
	t     testing.TB
	conn  *gorilla.Conn
	inbox *inbox
}

// DialWebSocket connects a client to the websocket adapter.
func (tc *TestContext) DialWebSocket() *WSClient {
	tc.T.Helper()

	url := fmt.Sprintf("ws://%s/ws", tc.WebSocket.Addr())
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		tc.T.Fatalf("Failed to dial %s: %v", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := &WSClient{t: tc.T, conn: conn}
	c.inbox = newInbox(tc.T, func() ([]byte, error) {
		_, data, err := conn.ReadMessage()
		return data, err
	})
	tc.T.Cleanup(c.Close)
	return c
}

func (c *WSClient) Send(op protocol.Operation) {
	c.t.Helper()

	data, err := protocol.EncodeOperation(op)
	if err != nil {
		c.t.Fatalf("Failed to encode %s: %v", op.Type(), err)
	}
	if err := c.conn.WriteMessage(gorilla.TextMessage, data); err != nil {
		c.t.Fatalf("Failed to send %s: %v", op.Type(), err)
	}
}

func (c *WSClient) Recv() protocol.Message {
	c.t.Helper()
	return c.inbox.recv()
}

func (c *WSClient) ExpectSilence(d time.Duration) {
	c.t.Helper()
	c.inbox.expectSilence(d)
}

func (c *WSClient) Close() {
	_ = c.conn.Close()
}

// ============================================================================
// TCP
// ============================================================================

// TCPClient speaks to the TCP adapter using record-marked frames.
type TCPClient struct {
	t     testing.TB
	conn  net.Conn
	inbox *inbox
}

// DialTCP connects a client to the TCP adapter.
func (tc *TestContext) DialTCP() *TCPClient {
	tc.T.Helper()

	conn, err := net.Dial("tcp", tc.TCP.Addr().String())
	if err != nil {
		tc.T.Fatalf("Failed to dial %s: %v", tc.TCP.Addr(), err)
	}

	r := bufio.NewReader(conn)
	c := &TCPClient{t: tc.T, conn: conn}
	c.inbox = newInbox(tc.T, func() ([]byte, error) {
		return tcp.ReadMessage(r, 0)
	})
	tc.T.Cleanup(c.Close)
	return c
}

func (c *TCPClient) Send(op protocol.Operation) {
	c.t.Helper()

	data, err := protocol.EncodeOperation(op)
	if err != nil {
		c.t.Fatalf("Failed to encode %s: %v", op.Type(), err)
	}
	if err := tcp.WriteMessage(c.conn, data); err != nil {
		c.t.Fatalf("Failed to send %s: %v", op.Type(), err)
	}
}

func (c *TCPClient) Recv() protocol.Message {
	c.t.Helper()
	return c.inbox.recv()
}

func (c *TCPClient) ExpectSilence(d time.Duration) {
	c.t.Helper()
	c.inbox.expectSilence(d)
}

func (c *TCPClient) Close() {
	_ = c.conn.Close()
}

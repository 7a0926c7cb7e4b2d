package tcp

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/marmos91/dittosync/internal/ratelimiter"
	"github.com/marmos91/dittosync/pkg/engine"
	"github.com/marmos91/dittosync/pkg/protocol"
	"github.com/marmos91/dittosync/pkg/session"
	"github.com/marmos91/dittosync/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Helpers
// ============================================================================

type harness struct {
	adapter *TCPAdapter
	engine  *engine.Engine
	cancel  context.CancelFunc
	done    chan error
}

func startAdapter(t *testing.T, cfg TCPConfig, engCfg engine.Config) *harness {
	t.Helper()

	st := memory.New()
	t.Cleanup(func() { _ = st.Close() })

	eng := engine.New(st, session.NewRegistry(nil), engCfg, nil)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}
	a := New(cfg, ratelimiter.Config{}, nil)
	a.SetEngine(eng)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	select {
	case <-a.Ready():
	case err := <-done:
		t.Fatalf("Serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener not ready")
	}

	h := &harness{adapter: a, engine: eng, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
	return h
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (h *harness) dial(t *testing.T) *client {
	t.Helper()
	conn, err := net.Dial("tcp", h.adapter.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(op protocol.Operation) {
	c.t.Helper()
	data, err := protocol.EncodeOperation(op)
	require.NoError(c.t, err)
	c.sendRaw(data)
}

func (c *client) sendRaw(data []byte) {
	c.t.Helper()
	require.NoError(c.t, WriteMessage(c.conn, data))
}

func (c *client) recv() protocol.Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	frame, err := ReadMessage(c.r, 0)
	require.NoError(c.t, err)
	msg, err := protocol.DecodeMessage(frame)
	require.NoError(c.t, err)
	return msg
}

func (c *client) expectSilence(d time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(d)))
	_, err := c.r.Peek(1)
	var netErr net.Error
	require.ErrorAs(c.t, err, &netErr)
	assert.True(c.t, netErr.Timeout(), "expected no message, got %v", err)
}

func waitSessions(t *testing.T, eng *engine.Engine, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return eng.Sessions().Len() == n
	}, 5*time.Second, 10*time.Millisecond)
}

// ============================================================================
// Tests
// ============================================================================

func TestTCPAdapter_EditIsBroadcastToOthers(t *testing.T) {
	h := startAdapter(t, TCPConfig{}, engine.Config{})
	alice := h.dial(t)
	bob := h.dial(t)
	waitSessions(t, h.engine, 2)

	alice.send(protocol.EditFile{File: "notes.txt", Content: "hello"})

	assert.Equal(t, protocol.FileUpdated{File: "notes.txt", Content: "hello"}, bob.recv())
	alice.expectSilence(100 * time.Millisecond)

	bob.send(protocol.GetFile{Name: "notes.txt"})
	assert.Equal(t, protocol.FileContent{File: "notes.txt", Content: "hello"}, bob.recv())
}

func TestTCPAdapter_RequestReply(t *testing.T) {
	h := startAdapter(t, TCPConfig{}, engine.Config{})
	c := h.dial(t)

	c.send(protocol.CreateFile{Name: "a.txt"})
	assert.Equal(t, protocol.FileCreated{Name: "a.txt"}, c.recv())

	c.send(protocol.RenameFile{OldName: "a.txt", NewName: "b.txt"})
	assert.Equal(t, protocol.FileRenamed{OldName: "a.txt", NewName: "b.txt"}, c.recv())

	c.send(protocol.ListFiles{})
	assert.Equal(t, protocol.FileList{Files: []string{"b.txt"}}, c.recv())

	c.send(protocol.DeleteFile{Name: "b.txt"})
	assert.Equal(t, protocol.FileDeleted{Name: "b.txt"}, c.recv())
}

func TestTCPAdapter_FragmentedMessage(t *testing.T) {
	h := startAdapter(t, TCPConfig{}, engine.Config{})
	c := h.dial(t)

	data, err := protocol.EncodeOperation(protocol.CreateFile{Name: "fragmented.txt"})
	require.NoError(t, err)
	require.NoError(t, WriteFragments(c.conn, data, 5))

	assert.Equal(t, protocol.FileCreated{Name: "fragmented.txt"}, c.recv())
}

func TestTCPAdapter_MalformedMessageKeepsConnection(t *testing.T) {
	h := startAdapter(t, TCPConfig{}, engine.Config{})
	c := h.dial(t)

	c.sendRaw([]byte(`{"type":"shred-file","payload":"a.txt"}`))
	msg := c.recv()
	errMsg, ok := msg.(protocol.Error)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, protocol.CodeBadRequest, errMsg.Code)

	c.send(protocol.ListFiles{})
	assert.Equal(t, protocol.FileList{Files: []string{}}, c.recv())
}

func TestTCPAdapter_OversizedMessageClosesConnection(t *testing.T) {
	h := startAdapter(t, TCPConfig{MaxMessageSize: 64}, engine.Config{})
	c := h.dial(t)
	waitSessions(t, h.engine, 1)

	big := make([]byte, 128)
	for i := range big {
		big[i] = 'x'
	}
	c.sendRaw(big)

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := c.r.ReadByte()
	assert.Error(t, err)
	waitSessions(t, h.engine, 0)
}

func TestTCPAdapter_DisconnectUnregistersSession(t *testing.T) {
	h := startAdapter(t, TCPConfig{}, engine.Config{})
	c := h.dial(t)
	waitSessions(t, h.engine, 1)
	assert.EqualValues(t, 1, h.adapter.ActiveConnections())

	require.NoError(t, c.conn.Close())

	waitSessions(t, h.engine, 0)
	require.Eventually(t, func() bool {
		return h.adapter.ActiveConnections() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTCPAdapter_GracefulShutdown(t *testing.T) {
	h := startAdapter(t, TCPConfig{}, engine.Config{})
	c := h.dial(t)
	waitSessions(t, h.engine, 1)

	start := time.Now()
	h.cancel()

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Less(t, time.Since(start), 2*time.Second)

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.r.ReadByte()
	assert.Error(t, err, "server closed the socket")
	assert.Equal(t, 0, h.engine.Sessions().Len())
}

func TestTCPAdapter_StopIsIdempotent(t *testing.T) {
	h := startAdapter(t, TCPConfig{}, engine.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, h.adapter.Stop(ctx))
	assert.NoError(t, h.adapter.Stop(ctx))
}

func TestTCPAdapter_ServeWithoutEngine(t *testing.T) {
	a := New(TCPConfig{}, ratelimiter.Config{}, nil)
	assert.Error(t, a.Serve(context.Background()))
}

func TestTCPAdapter_Identity(t *testing.T) {
	a := New(TCPConfig{Port: 9011}, ratelimiter.Config{}, nil)
	assert.Equal(t, "tcp", a.Protocol())
	assert.Equal(t, 9011, a.Port())
	assert.Nil(t, a.Addr())
}

package websocket

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
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

func newTestEngine(t *testing.T, cfg engine.Config) *engine.Engine {
	t.Helper()
	st := memory.New()
	t.Cleanup(func() { _ = st.Close() })
	return engine.New(st, session.NewRegistry(nil), cfg, nil)
}

// newTestServer serves the adapter handler through httptest.
func newTestServer(t *testing.T, cfg WebSocketConfig, eng *engine.Engine) (*WebSocketAdapter, string) {
	t.Helper()
	a := New(cfg, ratelimiter.Config{}, nil)
	a.SetEngine(eng)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
		srv.Close()
	})
	return a, "ws" + strings.TrimPrefix(srv.URL, "http")
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, url string) *client {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) send(op protocol.Operation) {
	c.t.Helper()
	data, err := protocol.EncodeOperation(op)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, data))
}

func (c *client) recv() protocol.Message {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := c.ws.ReadMessage()
	require.NoError(c.t, err)
	msg, err := protocol.DecodeMessage(data)
	require.NoError(c.t, err)
	return msg
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

func TestWebSocket_EditBroadcast(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	_, url := newTestServer(t, WebSocketConfig{}, eng)

	alice := dial(t, url+"/ws")
	bob := dial(t, url+"/ws")
	waitSessions(t, eng, 2)

	alice.send(protocol.EditFile{File: "notes.txt", Content: "draft"})
	assert.Equal(t, protocol.FileUpdated{File: "notes.txt", Content: "draft"}, bob.recv())

	// The editor hears nothing about its own edit; the next message it gets
	// is the reply to its own list request.
	alice.send(protocol.ListFiles{})
	assert.Equal(t, protocol.FileList{Files: []string{"notes.txt"}}, alice.recv())
}

func TestWebSocket_RequestReply(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	_, url := newTestServer(t, WebSocketConfig{}, eng)
	c := dial(t, url+"/ws")

	c.send(protocol.CreateFile{Name: "a.txt"})
	assert.Equal(t, protocol.FileCreated{Name: "a.txt"}, c.recv())

	c.send(protocol.GetFile{Name: "a.txt"})
	assert.Equal(t, protocol.FileContent{File: "a.txt", Content: ""}, c.recv())

	c.send(protocol.DeleteFile{Name: "a.txt"})
	assert.Equal(t, protocol.FileDeleted{Name: "a.txt"}, c.recv())
}

func TestWebSocket_MalformedFrame(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	_, url := newTestServer(t, WebSocketConfig{}, eng)
	c := dial(t, url+"/ws")

	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg := c.recv()
	errMsg, ok := msg.(protocol.Error)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, protocol.CodeBadRequest, errMsg.Code)

	c.send(protocol.ListFiles{})
	assert.Equal(t, protocol.FileList{Files: []string{}}, c.recv())
}

func TestWebSocket_ReportErrors(t *testing.T) {
	eng := newTestEngine(t, engine.Config{ReportErrors: true})
	_, url := newTestServer(t, WebSocketConfig{}, eng)
	c := dial(t, url+"/ws")

	c.send(protocol.GetFile{Name: "../etc/passwd"})
	msg := c.recv()
	errMsg, ok := msg.(protocol.Error)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, protocol.CodeInvalidName, errMsg.Code)
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	a, url := newTestServer(t, WebSocketConfig{}, eng)
	c := dial(t, url+"/ws")
	waitSessions(t, eng, 1)

	require.NoError(t, c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = c.ws.Close()

	waitSessions(t, eng, 0)
	require.Eventually(t, func() bool {
		return a.ActiveConnections() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWebSocket_ReadLimit(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	_, url := newTestServer(t, WebSocketConfig{ReadLimit: 64}, eng)
	c := dial(t, url+"/ws")
	waitSessions(t, eng, 1)

	big := strings.Repeat("x", 256)
	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte(big)))

	require.NoError(t, c.ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := c.ws.ReadMessage()
	assert.Error(t, err)
	waitSessions(t, eng, 0)
}

func TestWebSocket_MaxConnections(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	_, url := newTestServer(t, WebSocketConfig{MaxConnections: 1}, eng)

	dial(t, url+"/ws")
	waitSessions(t, eng, 1)

	_, resp, err := websocket.DefaultDialer.Dial(url+"/ws", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocket_AllowedOrigins(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	_, url := newTestServer(t, WebSocketConfig{AllowedOrigins: []string{"https://ok.example"}}, eng)

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url+"/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://ok.example")
	ws, resp, err := websocket.DefaultDialer.Dial(url+"/ws", header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	_ = ws.Close()
}

func TestWebSocket_StaticDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>DittoSync</h1>"), 0o644))

	eng := newTestEngine(t, engine.Config{})
	a := New(WebSocketConfig{StaticDir: dir}, ratelimiter.Config{}, nil)
	a.SetEngine(eng)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "DittoSync")
}

func TestWebSocket_ServeAndGracefulShutdown(t *testing.T) {
	eng := newTestEngine(t, engine.Config{})
	a := New(WebSocketConfig{ShutdownTimeout: 2 * time.Second}, ratelimiter.Config{}, nil)
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

	c := dial(t, "ws://"+a.Addr().String()+"/ws")
	waitSessions(t, eng, 1)

	cancel()

	require.NoError(t, c.ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := c.ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, eng.Sessions().Len())
}

func TestWebSocket_ConfigDefaults(t *testing.T) {
	cfg := WebSocketConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, "/ws", cfg.Path)
	assert.EqualValues(t, 1<<20, cfg.ReadLimit)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.PongTimeout)
}

func TestWebSocket_InvalidConfigPanics(t *testing.T) {
	assert.Panics(t, func() {
		New(WebSocketConfig{PingInterval: time.Minute, PongTimeout: time.Second}, ratelimiter.Config{}, nil)
	})
}

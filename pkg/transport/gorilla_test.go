package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades connections and echoes text frames until told to
// close with a given code.
type echoServer struct {
	srv      *httptest.Server
	mu       sync.Mutex
	conns    []*websocket.Conn
	upgrader websocket.Upgrader
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	e := &echoServer{}
	e.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := e.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		e.mu.Lock()
		e.conns = append(e.conns, conn)
		e.mu.Unlock()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage {
				_ = conn.WriteMessage(websocket.TextMessage, data)
			}
		}
	}))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *echoServer) url() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http")
}

func (e *echoServer) closeAll(code int, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second))
		_ = c.Close()
	}
}

func TestGorillaEcho(t *testing.T) {
	e := newEchoServer(t)

	received := make(chan []byte, 1)
	closed := make(chan struct{})
	var once sync.Once

	d := &GorillaDialer{}
	sock, err := d.Dial(context.Background(), e.url(), Callbacks{
		OnMessage: func(data []byte) { received <- data },
		OnClose:   func(code int, reason string) { once.Do(func() { close(closed) }) },
	})
	require.NoError(t, err)
	assert.True(t, sock.IsOpen())

	require.NoError(t, sock.Send(context.Background(), []byte(`{"type":"ping"}`)))
	select {
	case data := <-received:
		assert.JSONEq(t, `{"type":"ping"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("echo never arrived")
	}

	require.NoError(t, sock.Ping(context.Background()))

	_ = sock.Close()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose never fired")
	}
	assert.False(t, sock.IsOpen())
}

func TestGorillaServerCloseCode(t *testing.T) {
	e := newEchoServer(t)

	type closeEvent struct {
		code   int
		reason string
	}
	closes := make(chan closeEvent, 1)

	d := &GorillaDialer{}
	sock, err := d.Dial(context.Background(), e.url(), Callbacks{
		OnClose: func(code int, reason string) {
			closes <- closeEvent{code, reason}
		},
	})
	require.NoError(t, err)

	e.closeAll(CodeServiceRestart, "maintenance")

	select {
	case ev := <-closes:
		assert.Equal(t, CodeServiceRestart, ev.code)
		assert.Equal(t, "maintenance", ev.reason)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose never fired")
	}
	assert.False(t, sock.IsOpen())
}

func TestGorillaDialFailure(t *testing.T) {
	d := &GorillaDialer{}
	_, err := d.Dial(context.Background(), "ws://127.0.0.1:1/rt/ws", Callbacks{})
	assert.Error(t, err)
}

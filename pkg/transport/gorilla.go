package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	gorillaWriteTimeout = 10 * time.Second
	gorillaReadLimit    = 32 << 20
)

// GorillaDialer dials sockets backed by github.com/gorilla/websocket.
type GorillaDialer struct {
	// Dialer overrides the underlying dialer; nil uses the default.
	Dialer *websocket.Dialer
}

// Dial opens a connection and starts its read loop.
func (d *GorillaDialer) Dial(ctx context.Context, url string, cb Callbacks) (Socket, error) {
	wd := d.Dialer
	if wd == nil {
		wd = websocket.DefaultDialer
	}
	conn, resp, err := wd.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(gorillaReadLimit)

	s := &gorillaSocket{conn: conn, cb: cb}
	s.open.Store(true)
	go s.readLoop()
	return s, nil
}

type gorillaSocket struct {
	conn    *websocket.Conn
	cb      Callbacks
	writeMu sync.Mutex
	open    atomic.Bool
	closeMu sync.Mutex
	closed  bool
}

func (s *gorillaSocket) readLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if s.cb.OnMessage != nil {
			s.cb.OnMessage(data)
		}
	}
}

// finish runs the close path exactly once.
func (s *gorillaSocket) finish(err error) {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	s.closeMu.Unlock()

	s.open.Store(false)
	_ = s.conn.Close()

	code := CodeAbnormal
	reason := ""
	var ce *websocket.CloseError
	switch {
	case err == nil:
		code = websocket.CloseNormalClosure
	case errors.As(err, &ce):
		code = ce.Code
		reason = ce.Text
	default:
		var ne net.Error
		if !errors.As(err, &ne) || !ne.Timeout() {
			reason = err.Error()
		}
		if s.cb.OnError != nil {
			s.cb.OnError(err)
		}
	}
	if s.cb.OnClose != nil {
		s.cb.OnClose(code, reason)
	}
}

func (s *gorillaSocket) Send(ctx context.Context, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline := time.Now().Add(gorillaWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *gorillaSocket) Ping(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline := time.Now().Add(gorillaWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (s *gorillaSocket) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()
	err := s.conn.Close()
	// The read loop observes the closed connection and runs finish; closing
	// an already-finished socket is a no-op there.
	return err
}

func (s *gorillaSocket) IsOpen() bool {
	return s.open.Load()
}

package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

const coderReadLimit = 32 << 20

// CoderDialer dials sockets backed by nhooyr.io/websocket, for environments
// where the gorilla implementation is unavailable or a net/http-native
// client is preferred.
type CoderDialer struct {
	// Options overrides dial options; nil uses defaults.
	Options *websocket.DialOptions
}

// Dial opens a connection and starts its read loop.
func (d *CoderDialer) Dial(ctx context.Context, url string, cb Callbacks) (Socket, error) {
	conn, resp, err := websocket.Dial(ctx, url, d.Options)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(coderReadLimit)

	readCtx, cancel := context.WithCancel(context.Background())
	s := &coderSocket{conn: conn, cb: cb, cancel: cancel}
	s.open.Store(true)
	go s.readLoop(readCtx)
	return s, nil
}

type coderSocket struct {
	conn   *websocket.Conn
	cb     Callbacks
	cancel context.CancelFunc
	open   atomic.Bool
	done   atomic.Bool
}

func (s *coderSocket) readLoop(ctx context.Context) {
	for {
		msgType, data, err := s.conn.Read(ctx)
		if err != nil {
			s.finish(err)
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		if s.cb.OnMessage != nil {
			s.cb.OnMessage(data)
		}
	}
}

func (s *coderSocket) finish(err error) {
	if s.done.Swap(true) {
		return
	}
	s.open.Store(false)
	s.cancel()

	code := CodeAbnormal
	reason := ""
	if err == nil {
		code = int(websocket.StatusNormalClosure)
	} else if status := websocket.CloseStatus(err); status != -1 {
		code = int(status)
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			reason = ce.Reason
		}
	} else if err != nil && !errors.Is(err, context.Canceled) {
		reason = err.Error()
		if s.cb.OnError != nil {
			s.cb.OnError(err)
		}
	}
	_ = s.conn.Close(websocket.StatusNormalClosure, "")
	if s.cb.OnClose != nil {
		s.cb.OnClose(code, reason)
	}
}

func (s *coderSocket) Send(ctx context.Context, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *coderSocket) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.conn.Ping(pingCtx)
}

func (s *coderSocket) Close() error {
	err := s.conn.Close(websocket.StatusNormalClosure, "client closed")
	s.finish(nil)
	return err
}

func (s *coderSocket) IsOpen() bool {
	return s.open.Load()
}

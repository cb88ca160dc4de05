// Package transport normalizes the persistent bidirectional connection to the
// platform behind one capability set, so the session layer is independent of
// which websocket implementation the environment provides.
package transport

import "context"

// Close codes with protocol meaning to the session layer.
const (
	// CodeServiceRestart is sent by the server before a planned restart and
	// entitles the client to an immediate (zero-delay) reconnect.
	CodeServiceRestart = 1012

	// CodeAbnormal is reported when the connection failed without a close
	// frame.
	CodeAbnormal = 1006
)

// Callbacks are the listeners attached to a socket at dial time. OnMessage
// fires once per inbound text frame, in arrival order. OnClose fires exactly
// once, after which no further callbacks run. OnError reports read failures
// that were not clean closes; it fires before the matching OnClose.
type Callbacks struct {
	OnMessage func(data []byte)
	OnClose   func(code int, reason string)
	OnError   func(err error)
}

// Socket is one live connection.
type Socket interface {
	// Send writes one text frame.
	Send(ctx context.Context, data []byte) error

	// Ping sends a liveness probe.
	Ping(ctx context.Context) error

	// Close tears the connection down. Idempotent. Triggers OnClose.
	Close() error

	// IsOpen reports whether the socket has not yet closed.
	IsOpen() bool
}

// Dialer opens sockets. Implementations: GorillaDialer, CoderDialer.
type Dialer interface {
	Dial(ctx context.Context, url string, cb Callbacks) (Socket, error)
}

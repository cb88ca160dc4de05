// Package session owns the logical connection to the platform: ticket-based
// authentication, the inbound frame loop, and automatic reconnection with
// exponential backoff and reconnect-storm protection.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/loom-go/pkg/event"
	"github.com/loomworks/loom-go/pkg/logging"
	"github.com/loomworks/loom-go/pkg/metrics"
	"github.com/loomworks/loom-go/pkg/platform"
	"github.com/loomworks/loom-go/pkg/rpc"
	"github.com/loomworks/loom-go/pkg/transport"
)

// Connector provides the two remote capabilities the session needs: the
// ticket exchange and the derived socket endpoint. *rpc.Client satisfies it.
type Connector interface {
	ExchangeTicket(ctx context.Context) (rpc.Ticket, error)
	SocketURL(ticket rpc.Ticket) string
}

// Status is the session's position in the reconnect state machine.
type Status int

const (
	// StatusDisconnected: never connected, or reconnection is disabled and
	// the connection dropped.
	StatusDisconnected Status = iota
	// StatusConnected: a live socket is adopted.
	StatusConnected
	// StatusReconnectPending: a reconnect attempt is scheduled or in flight.
	StatusReconnectPending
	// StatusClosedIntentional: Disconnect was called; terminal until the next
	// Connect.
	StatusClosedIntentional
	// StatusExhausted: the attempt cap was reached; terminal until the next
	// Connect.
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusReconnectPending:
		return "reconnect_pending"
	case StatusClosedIntentional:
		return "closed_intentional"
	case StatusExhausted:
		return "reconnect_exhausted"
	default:
		return "disconnected"
	}
}

// Config tunes the reconnect state machine and keepalive behavior.
type Config struct {
	// Reconnect enables automatic reconnection on unexpected close.
	Reconnect bool
	// InitialDelay is the first backoff delay.
	InitialDelay time.Duration
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
	// BackoffFactor multiplies the delay per backoff-based attempt.
	BackoffFactor float64
	// MaxAttempts caps scheduled reconnect attempts since the last success;
	// zero means unlimited.
	MaxAttempts int
	// MaxImmediateRetries caps consecutive zero-delay reconnects granted by
	// the server's restart close code.
	MaxImmediateRetries int
	// DialTimeout bounds each ticket-exchange-plus-dial during reconnects.
	DialTimeout time.Duration
	// PingInterval enables periodic keepalive ping frames when positive.
	PingInterval time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Reconnect:           true,
		InitialDelay:        time.Second,
		MaxDelay:            30 * time.Second,
		BackoffFactor:       2,
		MaxAttempts:         10,
		MaxImmediateRetries: 3,
		DialTimeout:         15 * time.Second,
		PingInterval:        30 * time.Second,
	}
}

// pingFrame is the liveness probe; the server answers with a pong event.
var pingFrame = []byte(`{"type":"ping"}`)

// Manager maintains at most one live transport connection, translates
// inbound frames into dispatched events, and recovers from unexpected loss.
// One Manager per client instance; it is safe for concurrent use.
type Manager struct {
	cfg        Config
	conn       Connector
	dialer     transport.Dialer
	dispatcher *event.Dispatcher
	log        *logging.Logger

	mu               sync.Mutex
	sock             transport.Socket
	status           Status
	intentional      bool
	lastCloseCode    int
	immediateRetries int
	backoffAttempts  int
	totalAttempts    int
	timer            *time.Timer
	pingStop         chan struct{}
}

// NewManager creates a Manager. The dispatcher's subscriber registry is
// owned by the caller and survives this manager's connects and disconnects.
func NewManager(cfg Config, conn Connector, dialer transport.Dialer, dispatcher *event.Dispatcher, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.New("session", slog.LevelInfo)
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = 2
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	return &Manager{
		cfg:        cfg,
		conn:       conn,
		dialer:     dialer,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Status reports the current state-machine position.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect opens the connection. Idempotent: if a connection is already open
// it returns immediately with no side effects. On failure the session stays
// disconnected and returns a *ConnectionError distinguishing a ticket
// exchange failure from a socket open failure.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.sock != nil && m.sock.IsOpen() {
		m.mu.Unlock()
		return nil
	}
	m.intentional = false
	m.immediateRetries = 0
	m.backoffAttempts = 0
	m.totalAttempts = 0
	m.cancelTimerLocked()
	m.mu.Unlock()

	sock, handle, err := m.open(ctx)
	if err != nil {
		return err
	}
	m.adopt(sock, handle)
	m.log.Info("connected")
	return nil
}

// Disconnect closes the connection intentionally: no reconnect is scheduled
// and any pending reconnect timer is cancelled. Idempotent. Registered
// subscribers are preserved for a future Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentional = true
	m.status = StatusClosedIntentional
	m.cancelTimerLocked()
	sock := m.sock
	m.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
}

// Ping sends a best-effort liveness probe; silently a no-op if not
// connected. The server answers with a pong event.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.Lock()
	sock := m.sock
	m.mu.Unlock()
	if sock == nil || !sock.IsOpen() {
		return nil
	}
	return sock.Send(ctx, pingFrame)
}

// open runs the connect sequence: ticket exchange, then socket dial at a URL
// parameterized only by the ticket.
func (m *Manager) open(ctx context.Context) (transport.Socket, *sockHandle, error) {
	ticket, err := m.conn.ExchangeTicket(ctx)
	if err != nil {
		return nil, nil, &ConnectionError{Stage: StageTicket, Err: err}
	}
	if !ticket.ExpiresAt.IsZero() {
		m.log.Debug("ticket issued", slog.Time("expires_at", ticket.ExpiresAt))
	}

	handle := &sockHandle{mgr: m}
	sock, err := m.dialer.Dial(ctx, m.conn.SocketURL(ticket), transport.Callbacks{
		OnMessage: m.handleFrame,
		OnClose:   handle.onClose,
		OnError:   m.handleSocketError,
	})
	if err != nil {
		return nil, nil, &ConnectionError{Stage: StageSocket, Err: err}
	}
	return sock, handle, nil
}

// adopt installs a freshly opened socket as the live connection.
func (m *Manager) adopt(sock transport.Socket, handle *sockHandle) {
	m.mu.Lock()
	m.sock = sock
	m.status = StatusConnected
	m.startKeepaliveLocked(sock)
	m.mu.Unlock()

	// A close that raced the dial is delivered now that the socket is bound.
	if early := handle.bind(sock); early != nil {
		m.handleClose(sock, early.code, early.reason)
	}
}

func (m *Manager) handleFrame(data []byte) {
	evt, err := platform.DecodeFrame(data)
	if err != nil {
		// Malformed frames are dropped; they must never crash dispatch.
		metrics.FramesDropped.Inc()
		m.log.Debug("dropped malformed frame", slog.String("error", err.Error()))
		return
	}
	m.dispatcher.Dispatch(evt)
}

func (m *Manager) handleSocketError(err error) {
	m.log.Warn("socket error", slog.String("error", err.Error()))
	m.dispatcher.ReportError(err)
}

// handleClose runs when the live socket closes for any reason. Closes of
// sockets that were never adopted (a reconnect racing a disconnect) are
// ignored.
func (m *Manager) handleClose(sock transport.Socket, code int, reason string) {
	m.mu.Lock()
	if m.sock != sock {
		m.mu.Unlock()
		return
	}
	m.sock = nil
	m.lastCloseCode = code
	m.stopKeepaliveLocked()
	m.mu.Unlock()

	m.log.Info("connection closed",
		slog.Int("code", code),
		slog.String("reason", reason),
	)
	m.dispatcher.Dispatch(platform.Event{
		Type:      platform.EventClose,
		Payload:   &platform.ClosePayload{Code: code, Reason: reason},
		Timestamp: time.Now(),
	})

	m.scheduleReconnect()
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) startKeepaliveLocked(sock transport.Socket) {
	m.stopKeepaliveLocked()
	if m.cfg.PingInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	m.pingStop = stop
	go func() {
		ticker := time.NewTicker(m.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = sock.Send(ctx, pingFrame)
				cancel()
			}
		}
	}()
}

func (m *Manager) stopKeepaliveLocked() {
	if m.pingStop != nil {
		close(m.pingStop)
		m.pingStop = nil
	}
}

// sockHandle routes a socket's close callback to the manager once the dialed
// socket value is known, buffering a close that fires mid-dial.
type sockHandle struct {
	mgr *Manager

	mu    sync.Mutex
	sock  transport.Socket
	early *closeInfo
}

type closeInfo struct {
	code   int
	reason string
}

func (h *sockHandle) onClose(code int, reason string) {
	h.mu.Lock()
	if h.sock == nil {
		h.early = &closeInfo{code: code, reason: reason}
		h.mu.Unlock()
		return
	}
	sock := h.sock
	h.mu.Unlock()
	h.mgr.handleClose(sock, code, reason)
}

// bind attaches the dialed socket and returns a close that fired before
// binding, if any.
func (h *sockHandle) bind(sock transport.Socket) *closeInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sock = sock
	early := h.early
	h.early = nil
	return early
}

package session

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/loomworks/loom-go/pkg/metrics"
	"github.com/loomworks/loom-go/pkg/platform"
	"github.com/loomworks/loom-go/pkg/transport"
)

// scheduleReconnect decides, after a close, whether and when to try again.
// Every call re-evaluates caps and counters freshly; failed attempts funnel
// back through here.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()

	if m.intentional {
		m.status = StatusClosedIntentional
		m.mu.Unlock()
		return
	}
	if !m.cfg.Reconnect {
		m.status = StatusDisconnected
		m.mu.Unlock()
		return
	}
	if m.cfg.MaxAttempts > 0 && m.totalAttempts >= m.cfg.MaxAttempts {
		attempts := m.totalAttempts
		m.status = StatusExhausted
		m.mu.Unlock()
		m.log.Error("reconnect attempts exhausted", slog.Int("attempts", attempts))
		m.dispatcher.Dispatch(platform.Event{
			Type:      platform.EventReconnectFailed,
			Payload:   &platform.ReconnectFailedPayload{Attempts: attempts},
			Timestamp: time.Now(),
		})
		return
	}

	// Two independent counters: a server-signaled restart grants a small
	// number of consecutive zero-delay retries; everything else backs off
	// exponentially. Using an immediate retry resets the backoff counter.
	var delay time.Duration
	policy := "backoff"
	if m.lastCloseCode == transport.CodeServiceRestart && m.immediateRetries < m.cfg.MaxImmediateRetries {
		policy = "immediate"
		m.immediateRetries++
		m.backoffAttempts = 0
	} else {
		delay = backoffDelay(m.cfg.InitialDelay, m.cfg.BackoffFactor, m.cfg.MaxDelay, m.backoffAttempts)
		m.backoffAttempts++
	}
	m.totalAttempts++
	attempt := m.totalAttempts
	m.status = StatusReconnectPending
	m.mu.Unlock()

	metrics.ReconnectAttempts.WithLabelValues(policy).Inc()
	m.log.Info("reconnecting",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("policy", policy),
	)
	m.dispatcher.Dispatch(platform.Event{
		Type:      platform.EventReconnecting,
		Payload:   &platform.ReconnectingPayload{Attempt: attempt, Delay: delay},
		Timestamp: time.Now(),
	})

	m.mu.Lock()
	if m.intentional {
		m.status = StatusClosedIntentional
		m.mu.Unlock()
		return
	}
	m.timer = time.AfterFunc(delay, m.attemptReconnect)
	m.mu.Unlock()
}

// attemptReconnect runs one scheduled attempt: ticket exchange plus dial.
// Failure feeds back into scheduleReconnect; success either adopts the new
// socket or discards it if a disconnect raced the attempt.
func (m *Manager) attemptReconnect() {
	m.mu.Lock()
	if m.intentional {
		m.status = StatusClosedIntentional
		m.mu.Unlock()
		return
	}
	if m.sock != nil && m.sock.IsOpen() {
		// A concurrent Connect already re-established the session.
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	sock, handle, err := m.open(ctx)
	cancel()
	if err != nil {
		metrics.ReconnectFailures.Inc()
		m.log.Warn("reconnect attempt failed", slog.String("error", err.Error()))
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	if m.intentional {
		m.mu.Unlock()
		// Disconnect won the race: discard the new socket instead of
		// adopting it, and stay silent.
		_ = sock.Close()
		return
	}
	m.sock = sock
	m.status = StatusConnected
	attempts := m.totalAttempts
	m.immediateRetries = 0
	m.backoffAttempts = 0
	m.totalAttempts = 0
	m.startKeepaliveLocked(sock)
	m.mu.Unlock()

	m.log.Info("reconnected", slog.Int("attempts", attempts))
	m.dispatcher.Dispatch(platform.Event{
		Type:      platform.EventReconnected,
		Payload:   &platform.ReconnectedPayload{Attempts: attempts},
		Timestamp: time.Now(),
	})

	if early := handle.bind(sock); early != nil {
		m.handleClose(sock, early.code, early.reason)
	}
}

func backoffDelay(initial time.Duration, factor float64, max time.Duration, attempts int) time.Duration {
	delay := time.Duration(float64(initial) * math.Pow(factor, float64(attempts)))
	if delay > max || delay <= 0 {
		delay = max
	}
	return delay
}

// Package metrics exposes Prometheus instrumentation for the client's
// session and context-engine layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	ReconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "session",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnect attempts scheduled",
		},
		[]string{"policy"}, // "immediate" or "backoff"
	)

	ReconnectFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "session",
			Name:      "reconnect_failures_total",
			Help:      "Total number of failed reconnect attempts",
		},
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "session",
			Name:      "frames_dropped_total",
			Help:      "Total number of malformed inbound frames dropped",
		},
	)

	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "session",
			Name:      "events_dispatched_total",
			Help:      "Total number of events delivered to subscribers",
		},
		[]string{"type"},
	)

	HandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "session",
			Name:      "handler_errors_total",
			Help:      "Total number of subscriber and trigger handler failures",
		},
		[]string{"scope"}, // "subscriber" or "trigger"
	)

	// Context engine metrics
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "deliveries_total",
			Help:      "Total number of snapshot deliveries",
		},
		[]string{"trigger"}, // "mention", "invite", or "flush"
	)

	DegradedFetches = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "degraded_fetches_total",
			Help:      "Total number of metadata fetches that fell back to placeholder data",
		},
	)

	BufferedMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "buffered_messages",
			Help:      "Number of messages currently buffered across all threads",
		},
	)
)

// Package event implements the per-client event dispatch registry: a mapping
// from event-type name (plus the reserved wildcard) to subscriber callbacks.
package event

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/loomworks/loom-go/pkg/logging"
	"github.com/loomworks/loom-go/pkg/metrics"
	"github.com/loomworks/loom-go/pkg/platform"
)

// Handler receives dispatched events. Handlers run on the dispatching
// goroutine; a panicking handler is recovered and surfaced as an "error"
// event rather than crashing dispatch.
type Handler func(evt platform.Event)

// HandlerError is the payload of "error" events synthesized from a failed
// subscriber.
type HandlerError struct {
	EventType string
	Err       error
}

func (e HandlerError) Error() string {
	return fmt.Sprintf("handler for %q: %v", e.EventType, e.Err)
}

// Dispatcher routes events to subscribers. It is owned by one client
// instance; its registry survives reconnects and explicit disconnects and is
// cleared only by explicit unsubscription.
type Dispatcher struct {
	log *logging.Logger

	mu       sync.Mutex
	handlers map[string][]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.New("dispatcher", slog.LevelInfo)
	}
	return &Dispatcher{
		log:      log,
		handlers: make(map[string][]Handler),
	}
}

// On registers handler for eventType. Registrations append: registering the
// same handler twice for the same type makes it fire twice per event, and
// each Off call removes one occurrence. Use platform.EventWildcard to receive
// every event.
func (d *Dispatcher) On(eventType string, handler Handler) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
	d.mu.Unlock()
}

// Off removes one registration of handler for eventType, matching by
// function identity. No-op if the handler is not registered. Two distinct
// closures created from the same function literal share an identity; keep a
// reference to the registered value if you intend to remove it.
func (d *Dispatcher) Off(eventType string, handler Handler) {
	if handler == nil {
		return
	}
	target := reflect.ValueOf(handler).Pointer()

	d.mu.Lock()
	defer d.mu.Unlock()

	hs := d.handlers[eventType]
	for i, h := range hs {
		if reflect.ValueOf(h).Pointer() == target {
			d.handlers[eventType] = append(hs[:i], hs[i+1:]...)
			break
		}
	}
	if len(d.handlers[eventType]) == 0 {
		delete(d.handlers, eventType)
	}
}

// Dispatch delivers evt to every subscriber of its type, then to every
// wildcard subscriber. Subscriber failures are isolated: a panic is recovered
// and re-dispatched as an "error" event, except that failures inside "error"
// handlers themselves are swallowed to prevent recursion.
func (d *Dispatcher) Dispatch(evt platform.Event) {
	metrics.EventsDispatched.WithLabelValues(evt.Type).Inc()
	d.deliver(evt.Type, evt)
	if evt.Type != platform.EventWildcard {
		d.deliver(platform.EventWildcard, evt)
	}
}

func (d *Dispatcher) deliver(registeredType string, evt platform.Event) {
	d.mu.Lock()
	hs := make([]Handler, len(d.handlers[registeredType]))
	copy(hs, d.handlers[registeredType])
	d.mu.Unlock()

	for _, h := range hs {
		d.invoke(h, evt)
	}
}

func (d *Dispatcher) invoke(h Handler, evt platform.Event) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		metrics.HandlerErrors.WithLabelValues("subscriber").Inc()
		err, ok := r.(error)
		if !ok {
			err = fmt.Errorf("%v", r)
		}
		if evt.Type == platform.EventError {
			// An error handler that itself fails is swallowed.
			d.log.Warn("error handler failed",
				slog.String("error", err.Error()),
			)
			return
		}
		d.Dispatch(platform.Event{
			Type:      platform.EventError,
			Payload:   HandlerError{EventType: evt.Type, Err: err},
			Timestamp: evt.Timestamp,
		})
	}()
	h(evt)
}

// ReportError surfaces an out-of-band failure (for example a trigger handler
// error) on the "error" event stream.
func (d *Dispatcher) ReportError(err error) {
	if err == nil {
		return
	}
	d.Dispatch(platform.Event{
		Type:    platform.EventError,
		Payload: err,
	})
}

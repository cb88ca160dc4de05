package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/loomworks/loom-go/pkg/bus"
	"github.com/loomworks/loom-go/pkg/logging"
	"github.com/loomworks/loom-go/pkg/platform"
)

const publishTimeout = 5 * time.Second

// busBridge mirrors every dispatched event to the message bus, one subject
// per event type: "<prefix>.<type>". Publishing is best-effort; a failed
// publish is logged and never disturbs local dispatch.
type busBridge struct {
	bus    bus.MessageBus
	prefix string
	log    *logging.Logger
}

func newBusBridge(b bus.MessageBus, prefix string, log *logging.Logger) *busBridge {
	return &busBridge{bus: b, prefix: prefix, log: log}
}

type bridgeFrame struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (b *busBridge) forward(evt platform.Event) {
	frame := bridgeFrame{
		Type:      evt.Type,
		Payload:   evt.Payload,
		Timestamp: evt.Timestamp,
	}
	if frame.Payload == nil && len(evt.Raw) > 0 {
		frame.Payload = evt.Raw
	}
	data, err := json.Marshal(frame)
	if err != nil {
		// Synthetic payloads can carry unmarshalable values (errors); fall
		// back to the type-and-timestamp envelope.
		data, _ = json.Marshal(bridgeFrame{Type: evt.Type, Timestamp: evt.Timestamp})
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.bus.Publish(ctx, b.prefix+"."+evt.Type, data); err != nil {
		b.log.Warn("bus publish failed",
			slog.String("event_type", evt.Type),
			slog.String("error", err.Error()),
		)
	}
}

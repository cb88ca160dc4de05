package platform

import (
	"encoding/json"
	"errors"
	"time"
)

// Wire event types, discriminated by the frame's "type" field.
const (
	EventMessageCreated    = "message.created"
	EventPresenceChanged   = "presence.changed"
	EventChannelCreated    = "channel.created"
	EventThreadCreated     = "thread.created"
	EventThreadUpdated     = "thread.updated"
	EventThreadMessage     = "thread.message"
	EventThreadArtifact    = "thread.artifact"
	EventThreadParticipant = "thread.participant"
	EventThreadStatus      = "thread.status"
	EventIdentityRenamed   = "identity.renamed"
	EventServerError       = "server.error"
	EventPong              = "pong"
)

// Client-synthesized event types, never present on the wire.
const (
	EventClose           = "close"
	EventReconnecting    = "reconnecting"
	EventReconnected     = "reconnected"
	EventReconnectFailed = "reconnect_failed"
	EventError           = "error"

	// EventWildcard subscribers receive every event, after the subscribers
	// registered for the event's own type.
	EventWildcard = "*"
)

// Event is a decoded inbound or synthetic event. Payload holds the typed
// payload for known wire types (a pointer to one of the structs below) and
// the raw JSON for unknown types.
type Event struct {
	Type      string
	Payload   any
	Raw       json.RawMessage
	Timestamp time.Time
}

// PresenceChanged reports a member going online or offline.
type PresenceChanged struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ThreadUpdated carries the updated thread plus the names of the fields the
// server changed.
type ThreadUpdated struct {
	Thread        Thread   `json:"thread"`
	ChangedFields []string `json:"changedFields,omitempty"`
}

// ThreadArtifactEvent reports an artifact added to or updated in a thread.
type ThreadArtifactEvent struct {
	Artifact Artifact `json:"artifact"`
	Action   string   `json:"action"` // "added" or "updated"
}

// ThreadParticipantEvent reports a participant joining or leaving a thread.
type ThreadParticipantEvent struct {
	ThreadID    string      `json:"threadId"`
	Participant Participant `json:"participant"`
	Action      string      `json:"action"` // "joined" or "left"
}

// ThreadStatusChanged reports a thread status transition.
type ThreadStatusChanged struct {
	ThreadID       string `json:"threadId"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus,omitempty"`
}

// IdentityRenamed reports a member changing their display name.
type IdentityRenamed struct {
	UserID  string `json:"userId"`
	OldName string `json:"oldName,omitempty"`
	NewName string `json:"newName"`
}

// ServerError is an error the server reports in-band. It is ordinary event
// data; the client applies no automatic backoff to it.
type ServerError struct {
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	RetryAfter int    `json:"retryAfterSeconds,omitempty"`
}

// ClosePayload accompanies the synthetic close event.
type ClosePayload struct {
	Code   int    `json:"code"`
	Reason string `json:"reason,omitempty"`
}

// ReconnectingPayload accompanies the synthetic reconnecting event.
type ReconnectingPayload struct {
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
}

// ReconnectFailedPayload accompanies the terminal reconnect_failed event.
type ReconnectFailedPayload struct {
	Attempts int `json:"attempts"`
}

// ReconnectedPayload accompanies the synthetic reconnected event. Consumers
// are expected to run their own catch-up on receipt; missed messages are not
// replayed by the client.
type ReconnectedPayload struct {
	Attempts int `json:"attempts"`
}

var errMissingType = errors.New("frame has no type")

type frameEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// DecodeFrame parses one textual frame into an Event. Unknown event types
// decode successfully with a nil typed payload so they can still be
// dispatched; malformed frames return an error and are dropped by the caller.
func DecodeFrame(data []byte) (Event, error) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, err
	}
	if env.Type == "" {
		return Event{}, errMissingType
	}

	evt := Event{
		Type:      env.Type,
		Raw:       env.Payload,
		Timestamp: env.Timestamp,
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	payload, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		return Event{}, err
	}
	evt.Payload = payload
	return evt, nil
}

func decodePayload(eventType string, raw json.RawMessage) (any, error) {
	var target any
	switch eventType {
	case EventMessageCreated, EventThreadMessage:
		target = &Message{}
	case EventPresenceChanged:
		target = &PresenceChanged{}
	case EventChannelCreated:
		target = &Channel{}
	case EventThreadCreated:
		target = &Thread{}
	case EventThreadUpdated:
		target = &ThreadUpdated{}
	case EventThreadArtifact:
		target = &ThreadArtifactEvent{}
	case EventThreadParticipant:
		target = &ThreadParticipantEvent{}
	case EventThreadStatus:
		target = &ThreadStatusChanged{}
	case EventIdentityRenamed:
		target = &IdentityRenamed{}
	case EventServerError:
		target = &ServerError{}
	case EventPong:
		return nil, nil
	default:
		// Unknown types are dispatched with their raw payload only.
		return nil, nil
	}
	if len(raw) == 0 {
		return target, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, err
	}
	return target, nil
}

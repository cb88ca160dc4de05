package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameThreadMessage(t *testing.T) {
	data := []byte(`{
		"type": "thread.message",
		"timestamp": "2026-08-25T10:00:00Z",
		"payload": {
			"id": "m1",
			"threadId": "t1",
			"senderId": "u1",
			"senderName": "Ada",
			"content": "hello nova",
			"createdAt": "2026-08-25T10:00:00Z"
		}
	}`)

	evt, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, EventThreadMessage, evt.Type)

	msg, ok := evt.Payload.(*Message)
	require.True(t, ok)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "t1", msg.ThreadID)
	assert.Equal(t, "hello nova", msg.Content)
	assert.Equal(t, time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC), evt.Timestamp)
}

func TestDecodeFrameUnknownType(t *testing.T) {
	evt, err := DecodeFrame([]byte(`{"type":"workspace.archived","payload":{"workspaceId":"w1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "workspace.archived", evt.Type)
	assert.Nil(t, evt.Payload)
	assert.JSONEq(t, `{"workspaceId":"w1"}`, string(evt.Raw))
}

func TestDecodeFrameMalformed(t *testing.T) {
	for _, data := range []string{
		`not json at all`,
		`{"payload":{}}`,
		`{"type":"thread.message","payload":"not an object"}`,
	} {
		_, err := DecodeFrame([]byte(data))
		assert.Error(t, err, "input: %s", data)
	}
}

func TestDecodeFrameMissingTimestampDefaults(t *testing.T) {
	evt, err := DecodeFrame([]byte(`{"type":"pong"}`))
	require.NoError(t, err)
	assert.False(t, evt.Timestamp.IsZero())
}

func TestMessageText(t *testing.T) {
	plain := Message{Content: "hello"}
	assert.Equal(t, "hello", plain.Text())

	withParts := Message{
		Content: "intro",
		Parts: []MessagePart{
			{Type: "text", Text: "part one"},
			{Type: "image"},
			{Type: "text", Text: "part two"},
		},
	}
	assert.Equal(t, "intro part one part two", withParts.Text())
}

func TestMessageDisplaySender(t *testing.T) {
	assert.Equal(t, "Ada", Message{SenderID: "u1", SenderName: "Ada"}.DisplaySender())
	assert.Equal(t, "u1", Message{SenderID: "u1"}.DisplaySender())
	assert.Equal(t, "system", Message{}.DisplaySender())
}

func TestParticipantName(t *testing.T) {
	assert.Equal(t, "Ada", Participant{ID: "u1", DisplayName: "Ada"}.Name())
	assert.Equal(t, "u1", Participant{ID: "u1"}.Name())
}

package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom-go/pkg/platform"
)

func promptEngine(t *testing.T) *Engine {
	t.Helper()
	e, _ := testEngine(t, Config{}, nil)
	e.mu.Lock()
	e.threads["t1"] = platform.Thread{ID: "t1", Title: "Launch plan", Status: platform.StatusActive}
	e.participants["t1"] = []platform.Participant{
		{ID: "u1", DisplayName: "Ada"},
		{ID: "u2"},
	}
	e.artifacts["t1"] = map[string]platform.Artifact{
		"spec": {Key: "spec", ThreadID: "t1", Version: 4},
		"plan": {Key: "plan", ThreadID: "t1", Version: 1},
	}
	e.mu.Unlock()
	return e
}

func TestPromptSummary(t *testing.T) {
	e := promptEngine(t)
	at := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	e.OnInboundMessage("t1", msg("m1", "u1", "kickoff", at))

	out := e.PromptContext("t1", ModeSummary)

	assert.Contains(t, out, "Thread: Launch plan (t1)")
	assert.Contains(t, out, "Status: active (")
	assert.Contains(t, out, "Participants: Ada, u2")
	// Artifacts sorted by key.
	assert.Contains(t, out, "Artifacts: plan (v1), spec (v4)")
	assert.Contains(t, out, "Buffered messages: 1")
	assert.NotContains(t, out, "kickoff", "summary omits the transcript")
}

func TestPromptFullTranscript(t *testing.T) {
	e := promptEngine(t)
	at := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	e.OnInboundMessage("t1", platform.Message{
		ID: "m1", ThreadID: "t1", SenderID: "u1", SenderName: "Ada",
		Content: "shall we start?", CreatedAt: at,
	})
	e.OnInboundMessage("t1", msg("m2", "u2", "yes", at.Add(time.Minute)))

	out := e.PromptContext("t1", ModeFull)

	assert.Contains(t, out, "[2026-08-25 09:30:00] Ada: shall we start?")
	assert.Contains(t, out, "[2026-08-25 09:31:00] u2: yes")
	// Chronological order.
	assert.Less(t, strings.Index(out, "shall we start?"), strings.Index(out, "yes"))
}

func TestPromptDeltaRespectsWatermark(t *testing.T) {
	e := promptEngine(t)
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	e.OnInboundMessage("t1", msg("m1", "u1", "before delivery", base))

	var delivered int
	e.RegisterTriggerHandler(func(ctx context.Context, s *Snapshot) error {
		delivered = s.BufferedCount
		return nil
	})
	e.Flush(context.Background(), "t1")
	require.Equal(t, 1, delivered)

	// Same-timestamp sibling with a new ID is NOT covered by the watermark.
	e.OnInboundMessage("t1", msg("m2", "u1", "same instant", base))
	e.OnInboundMessage("t1", msg("m3", "u1", "clearly after", base.Add(time.Minute)))

	out := e.PromptContext("t1", ModeDelta)
	assert.NotContains(t, out, "before delivery")
	assert.Contains(t, out, "same instant")
	assert.Contains(t, out, "clearly after")
}

func TestPromptDeltaNoWatermarkShowsAll(t *testing.T) {
	e := promptEngine(t)
	at := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	e.OnInboundMessage("t1", msg("m1", "u1", "everything is new", at))

	out := e.PromptContext("t1", ModeDelta)
	assert.Contains(t, out, "everything is new")
}

func TestPromptUnknownThreadPlaceholder(t *testing.T) {
	e, _ := testEngine(t, Config{}, nil)

	out := e.PromptContext("mystery", ModeSummary)
	assert.Contains(t, out, "Thread: mystery (mystery)")
	assert.Contains(t, out, "Status: unknown (unknown status)")
	assert.Contains(t, out, "Buffered messages: 0")
}

func TestStatusGuide(t *testing.T) {
	for _, status := range []string{
		platform.StatusActive,
		platform.StatusBlocked,
		platform.StatusReviewing,
		platform.StatusResolved,
		platform.StatusClosed,
	} {
		assert.NotEqual(t, "unknown status", StatusGuide(status), status)
	}
	assert.Equal(t, "unknown status", StatusGuide("archived"))
	assert.Equal(t, "unknown status", StatusGuide(""))
}

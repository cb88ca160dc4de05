package conversation

import (
	"fmt"
	"strings"

	"github.com/loomworks/loom-go/pkg/platform"
)

// Mode selects how much of the buffered transcript PromptContext renders.
type Mode string

const (
	// ModeSummary renders the header only: thread, status, participants,
	// artifacts and the buffered count.
	ModeSummary Mode = "summary"
	// ModeFull renders the header plus every buffered message.
	ModeFull Mode = "full"
	// ModeDelta renders the header plus only messages past the thread's
	// delivery watermark. With no watermark yet, every message is new.
	ModeDelta Mode = "delta"
)

const promptTimeLayout = "2006-01-02 15:04:05"

// PromptContext serializes a thread's current context into prompt-ready
// text. It is a pure read of engine state: no fetches, no buffer mutation,
// no watermark advancement.
func (e *Engine) PromptContext(threadID string, mode Mode) string {
	e.mu.Lock()
	thread, haveThread := e.threads[threadID]
	parts := append([]platform.Participant(nil), e.participants[threadID]...)
	arts := make([]platform.Artifact, 0, len(e.artifacts[threadID]))
	for _, a := range e.artifacts[threadID] {
		arts = append(arts, a)
	}
	var msgs []platform.Message
	if buf, ok := e.buffers[threadID]; ok {
		msgs = append([]platform.Message(nil), buf.msgs...)
	}
	wm := e.watermarks[threadID]
	e.mu.Unlock()

	if !haveThread {
		thread = platform.Thread{ID: threadID, Title: threadID, Status: "unknown"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Thread: %s (%s)\n", thread.Title, thread.ID)
	fmt.Fprintf(&b, "Status: %s (%s)\n", thread.Status, StatusGuide(thread.Status))

	if len(parts) > 0 {
		names := make([]string, len(parts))
		for i, p := range parts {
			names[i] = p.Name()
		}
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(names, ", "))
	}
	if len(arts) > 0 {
		sortArtifacts(arts)
		labels := make([]string, len(arts))
		for i, a := range arts {
			labels[i] = fmt.Sprintf("%s (v%d)", a.Key, a.Version)
		}
		fmt.Fprintf(&b, "Artifacts: %s\n", strings.Join(labels, ", "))
	}
	fmt.Fprintf(&b, "Buffered messages: %d\n", len(msgs))

	switch mode {
	case ModeFull:
		writeTranscript(&b, msgs)
	case ModeDelta:
		fresh := msgs[:0:0]
		for _, m := range msgs {
			if !wm.covers(m) {
				fresh = append(fresh, m)
			}
		}
		writeTranscript(&b, fresh)
	}
	return b.String()
}

// writeTranscript appends one "[timestamp] sender: text" line per message,
// timestamps in UTC, in buffer (chronological) order.
func writeTranscript(b *strings.Builder, msgs []platform.Message) {
	if len(msgs) == 0 {
		return
	}
	b.WriteString("\n")
	for _, m := range msgs {
		fmt.Fprintf(b, "[%s] %s: %s\n",
			m.CreatedAt.UTC().Format(promptTimeLayout),
			m.DisplaySender(),
			m.Text(),
		)
	}
}

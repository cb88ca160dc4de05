package conversation

import (
	"github.com/loomworks/loom-go/pkg/platform"
)

// Dispatcher event handlers. These run on the socket read-loop goroutine, so
// each does only cache bookkeeping under the engine mutex and hands any
// blocking work to a delivery goroutine.

func (e *Engine) onThreadMessage(evt platform.Event) {
	msg, ok := evt.Payload.(*platform.Message)
	if !ok || msg == nil {
		return
	}
	e.OnInboundMessage(msg.ThreadID, *msg)
}

func (e *Engine) onThreadCreated(evt platform.Event) {
	thread, ok := evt.Payload.(*platform.Thread)
	if !ok || thread == nil || thread.ID == "" {
		return
	}
	e.mu.Lock()
	e.threads[thread.ID] = *thread
	e.mu.Unlock()
}

func (e *Engine) onThreadUpdated(evt platform.Event) {
	upd, ok := evt.Payload.(*platform.ThreadUpdated)
	if !ok || upd == nil || upd.Thread.ID == "" {
		return
	}
	e.mu.Lock()
	e.threads[upd.Thread.ID] = upd.Thread
	e.mu.Unlock()
}

func (e *Engine) onThreadStatus(evt platform.Event) {
	st, ok := evt.Payload.(*platform.ThreadStatusChanged)
	if !ok || st == nil || st.ThreadID == "" {
		return
	}
	e.mu.Lock()
	if thread, cached := e.threads[st.ThreadID]; cached {
		thread.Status = st.Status
		e.threads[st.ThreadID] = thread
	} else {
		e.threads[st.ThreadID] = platform.Thread{ID: st.ThreadID, Title: st.ThreadID, Status: st.Status}
	}
	e.mu.Unlock()
}

func (e *Engine) onThreadArtifact(evt platform.Event) {
	ae, ok := evt.Payload.(*platform.ThreadArtifactEvent)
	if !ok || ae == nil || ae.Artifact.ThreadID == "" || ae.Artifact.Key == "" {
		return
	}
	e.mu.Lock()
	byKey, cached := e.artifacts[ae.Artifact.ThreadID]
	if !cached {
		byKey = make(map[string]platform.Artifact)
		e.artifacts[ae.Artifact.ThreadID] = byKey
	}
	// Last writer wins per key; the event carries the latest version.
	byKey[ae.Artifact.Key] = ae.Artifact
	e.mu.Unlock()
}

func (e *Engine) onThreadParticipant(evt platform.Event) {
	pe, ok := evt.Payload.(*platform.ThreadParticipantEvent)
	if !ok || pe == nil || pe.ThreadID == "" {
		return
	}

	e.mu.Lock()
	parts := e.participants[pe.ThreadID]
	switch pe.Action {
	case "joined":
		replaced := false
		for i, p := range parts {
			if p.ID == pe.Participant.ID {
				parts[i] = pe.Participant
				replaced = true
				break
			}
		}
		if !replaced {
			parts = append(parts, pe.Participant)
		}
	case "left":
		for i, p := range parts {
			if p.ID == pe.Participant.ID {
				parts = append(parts[:i], parts[i+1:]...)
				break
			}
		}
	}
	e.participants[pe.ThreadID] = parts
	e.mu.Unlock()

	if pe.Action == "joined" && pe.Participant.ID == e.cfg.BotID {
		e.OnInvite(pe.ThreadID)
	}
}

func (e *Engine) onIdentityRenamed(evt platform.Event) {
	ren, ok := evt.Payload.(*platform.IdentityRenamed)
	if !ok || ren == nil || ren.UserID == "" {
		return
	}
	e.mu.Lock()
	for threadID, parts := range e.participants {
		for i, p := range parts {
			if p.ID == ren.UserID {
				parts[i].DisplayName = ren.NewName
			}
		}
		e.participants[threadID] = parts
	}
	e.mu.Unlock()
}

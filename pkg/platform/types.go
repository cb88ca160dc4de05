// Package platform defines the Loom wire data model: the entities exchanged
// with the collaboration service and the inbound event taxonomy delivered over
// the realtime socket.
package platform

import (
	"strings"
	"time"
)

// Thread lifecycle statuses as reported by the platform.
const (
	StatusActive    = "active"
	StatusBlocked   = "blocked"
	StatusReviewing = "reviewing"
	StatusResolved  = "resolved"
	StatusClosed    = "closed"
)

// Message is a single message in a thread or channel timeline.
type Message struct {
	ID         string        `json:"id"`
	ThreadID   string        `json:"threadId,omitempty"`
	ChannelID  string        `json:"channelId,omitempty"`
	SenderID   string        `json:"senderId"`
	SenderName string        `json:"senderName,omitempty"`
	Content    string        `json:"content"`
	Parts      []MessagePart `json:"parts,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// MessagePart is a structured sub-part of a message. Only textual parts
// participate in trigger matching.
type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Text returns the message content concatenated with every textual sub-part,
// which is the string trigger patterns are evaluated against.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	b.WriteString(m.Content)
	for _, p := range m.Parts {
		if p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// DisplaySender returns the best human-readable sender label: display name,
// then sender ID, then the literal "system".
func (m Message) DisplaySender() string {
	if m.SenderName != "" {
		return m.SenderName
	}
	if m.SenderID != "" {
		return m.SenderID
	}
	return "system"
}

// Thread is a multi-party collaboration context with a lifecycle status.
type Thread struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Participant is a member of a thread.
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName,omitempty"`
	Role        string    `json:"role,omitempty"`
	JoinedAt    time.Time `json:"joinedAt,omitempty"`
}

// Name returns the participant's display name, falling back to the ID.
func (p Participant) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// Artifact is a versioned shared work product attached to a thread,
// identified by a key unique within that thread.
type Artifact struct {
	Key         string    `json:"key"`
	ThreadID    string    `json:"threadId"`
	Version     int       `json:"version"`
	Kind        string    `json:"kind,omitempty"`
	Title       string    `json:"title,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	UpdatedBy   string    `json:"updatedBy,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Channel is a plain message channel, distinct from a thread.
type Channel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

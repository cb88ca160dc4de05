// Package conversation implements the buffered context engine: it consumes
// dispatched thread events, accumulates per-thread message buffers, detects
// trigger conditions (name mentions, invitations), and hands point-in-time
// consistent snapshots to registered trigger handlers, maintaining delivery
// watermarks for incremental consumption.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"github.com/loomworks/loom-go/pkg/event"
	"github.com/loomworks/loom-go/pkg/logging"
	"github.com/loomworks/loom-go/pkg/metrics"
	"github.com/loomworks/loom-go/pkg/platform"
)

const fetchTimeout = 10 * time.Second

// Config tunes the engine.
type Config struct {
	// BotID is the bot's own identity; messages it sent are never buffered.
	BotID string
	// BotName and Aliases become case-insensitive word-boundary trigger
	// patterns.
	BotName string
	Aliases []string
	// ExtraPatterns are additional caller-supplied regular expressions.
	ExtraPatterns []string
	// MaxBufferSize caps each thread buffer; oldest messages drop first.
	MaxBufferSize int
	// TriggerOnInvite delivers when the bot is added to a thread.
	TriggerOnInvite bool
}

// DefaultMaxBufferSize applies when Config.MaxBufferSize is zero.
const DefaultMaxBufferSize = 50

// Fetcher provides the on-demand remote fetches used to fill snapshot
// caches. *rpc.Client satisfies it.
type Fetcher interface {
	GetThread(ctx context.Context, threadID string) (platform.Thread, error)
	ListParticipants(ctx context.Context, threadID string) ([]platform.Participant, error)
	ListArtifacts(ctx context.Context, threadID string) ([]platform.Artifact, error)
}

// TriggerHandler consumes one delivery. Handlers run sequentially in
// registration order; a failing handler is reported on the error event
// stream and does not stop the rest.
type TriggerHandler func(ctx context.Context, snap *Snapshot) error

// Snapshot is the immutable composite handed to every trigger handler for
// one delivery.
type Snapshot struct {
	// DeliveryID identifies this delivery cycle.
	DeliveryID string
	ThreadID   string
	Thread     platform.Thread
	// Participants is the cached (or freshly fetched) participant list.
	Participants []platform.Participant
	// NewMessages is the exact buffered slice frozen at delivery start.
	// Messages arriving while handlers run are not in it; they stay
	// buffered for the next delivery.
	NewMessages []platform.Message
	// BufferedCount is len(NewMessages) at freeze time.
	BufferedCount int
	Artifacts     []platform.Artifact
	// Trigger is never empty: the matching message, else the last frozen
	// message, else a synthetic placeholder.
	Trigger platform.Message
	// InviteTriggered marks deliveries initiated by an invitation rather
	// than a mention.
	InviteTriggered bool
	// Degraded is set when metadata could not be fetched and placeholder
	// data was substituted.
	Degraded bool
}

// HandlerError reports a trigger handler failure on the error event stream.
type HandlerError struct {
	ThreadID   string
	DeliveryID string
	Err        error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("trigger handler for thread %s (delivery %s): %v", e.ThreadID, e.DeliveryID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Engine is the buffered context engine. One per client instance; all state
// is private to it so multiple clients coexist in a process.
type Engine struct {
	cfg        Config
	fetcher    Fetcher
	dispatcher *event.Dispatcher
	log        *logging.Logger
	patterns   []*regexp.Regexp
	group      singleflight.Group

	mu           sync.Mutex
	started      bool
	buffers      map[string]*threadBuffer
	watermarks   map[string]watermark
	threads      map[string]platform.Thread
	participants map[string][]platform.Participant
	artifacts    map[string]map[string]platform.Artifact
	handlers     []TriggerHandler
	buffered     int
}

// NewEngine creates an Engine. It does not consume events until Start.
func NewEngine(cfg Config, fetcher Fetcher, dispatcher *event.Dispatcher, log *logging.Logger) (*Engine, error) {
	if log == nil {
		log = logging.New("conversation", slog.LevelInfo)
	}
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = DefaultMaxBufferSize
	}
	names := append([]string{cfg.BotName}, cfg.Aliases...)
	patterns, err := compileTriggerPatterns(names, cfg.ExtraPatterns)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:          cfg,
		fetcher:      fetcher,
		dispatcher:   dispatcher,
		log:          log,
		patterns:     patterns,
		buffers:      make(map[string]*threadBuffer),
		watermarks:   make(map[string]watermark),
		threads:      make(map[string]platform.Thread),
		participants: make(map[string][]platform.Participant),
		artifacts:    make(map[string]map[string]platform.Artifact),
	}, nil
}

// RegisterTriggerHandler appends a handler; handlers run in registration
// order per delivery.
func (e *Engine) RegisterTriggerHandler(h TriggerHandler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	e.handlers = append(e.handlers, h)
	e.mu.Unlock()
}

// Start attaches the engine to the dispatcher. Idempotent. Buffers, caches
// and watermarks from a previous Start are retained.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.dispatcher.On(platform.EventThreadMessage, e.onThreadMessage)
	e.dispatcher.On(platform.EventThreadCreated, e.onThreadCreated)
	e.dispatcher.On(platform.EventThreadUpdated, e.onThreadUpdated)
	e.dispatcher.On(platform.EventThreadStatus, e.onThreadStatus)
	e.dispatcher.On(platform.EventThreadArtifact, e.onThreadArtifact)
	e.dispatcher.On(platform.EventThreadParticipant, e.onThreadParticipant)
	e.dispatcher.On(platform.EventIdentityRenamed, e.onIdentityRenamed)
}

// Stop detaches from the dispatcher without discarding buffers.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()

	e.dispatcher.Off(platform.EventThreadMessage, e.onThreadMessage)
	e.dispatcher.Off(platform.EventThreadCreated, e.onThreadCreated)
	e.dispatcher.Off(platform.EventThreadUpdated, e.onThreadUpdated)
	e.dispatcher.Off(platform.EventThreadStatus, e.onThreadStatus)
	e.dispatcher.Off(platform.EventThreadArtifact, e.onThreadArtifact)
	e.dispatcher.Off(platform.EventThreadParticipant, e.onThreadParticipant)
	e.dispatcher.Off(platform.EventIdentityRenamed, e.onIdentityRenamed)
}

// BufferSize returns the number of buffered messages for a thread.
func (e *Engine) BufferSize(threadID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.buffers[threadID]; ok {
		return len(b.msgs)
	}
	return 0
}

// ActiveThreads lists threads with at least one buffered message, sorted.
func (e *Engine) ActiveThreads() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for id, b := range e.buffers {
		if len(b.msgs) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// OnInboundMessage buffers one inbound thread message and starts a delivery
// if it matches a trigger pattern. Messages from the bot itself are ignored
// entirely.
func (e *Engine) OnInboundMessage(threadID string, msg platform.Message) {
	if threadID == "" || msg.SenderID == e.cfg.BotID {
		return
	}

	e.mu.Lock()
	buf := e.bufferLocked(threadID)
	dropped := buf.append(msg, e.cfg.MaxBufferSize)
	e.buffered += 1 - dropped
	metrics.BufferedMessages.Set(float64(e.buffered))
	e.mu.Unlock()

	if matchesAny(e.patterns, msg.Text()) {
		trigger := msg
		go e.deliver(context.Background(), threadID, &trigger, false, "mention")
	}
}

// OnInvite starts a delivery for an invitation, with no trigger message.
// No-op unless invite triggering is enabled.
func (e *Engine) OnInvite(threadID string) {
	if !e.cfg.TriggerOnInvite || threadID == "" {
		return
	}
	go e.deliver(context.Background(), threadID, nil, true, "invite")
}

// Flush delivers the current buffer without a mention, triggered by the most
// recent buffered message. No-op if the buffer is empty. Unlike mention
// deliveries, Flush runs synchronously.
func (e *Engine) Flush(ctx context.Context, threadID string) {
	e.mu.Lock()
	buf, ok := e.buffers[threadID]
	if !ok || len(buf.msgs) == 0 {
		e.mu.Unlock()
		return
	}
	trigger := buf.msgs[len(buf.msgs)-1]
	e.mu.Unlock()

	e.deliver(ctx, threadID, &trigger, false, "flush")
}

// deliver runs the snapshot-then-reconcile delivery protocol. The buffer
// contents and length are frozen synchronously before any blocking work;
// messages arriving while handlers run survive into the next buffer
// generation, and nothing frozen is ever delivered twice.
func (e *Engine) deliver(ctx context.Context, threadID string, trigger *platform.Message, invite bool, kind string) {
	// 1. Freeze the buffer and its cut-point.
	e.mu.Lock()
	buf := e.bufferLocked(threadID)
	frozen := append([]platform.Message(nil), buf.msgs...)
	cutoff := buf.appended
	e.mu.Unlock()

	// 2. Ensure metadata, degrading on fetch failure rather than aborting.
	thread, participants, artifacts, degraded := e.ensureContext(ctx, threadID)

	// 3-4. Build the immutable snapshot; a delivery always carries a
	// non-empty trigger message.
	trig := e.resolveTrigger(threadID, trigger, frozen)
	snap := &Snapshot{
		DeliveryID:      ulid.Make().String(),
		ThreadID:        threadID,
		Thread:          thread,
		Participants:    participants,
		NewMessages:     frozen,
		BufferedCount:   len(frozen),
		Artifacts:       artifacts,
		Trigger:         trig,
		InviteTriggered: invite,
		Degraded:        degraded,
	}
	metrics.Deliveries.WithLabelValues(kind).Inc()

	// 5. Handlers run sequentially in registration order; failures are
	// reported and skipped.
	e.mu.Lock()
	handlers := append([]TriggerHandler(nil), e.handlers...)
	e.mu.Unlock()
	for _, h := range handlers {
		if err := h(ctx, snap); err != nil {
			metrics.HandlerErrors.WithLabelValues("trigger").Inc()
			e.log.WithThread(threadID).Warn("trigger handler failed",
				slog.String("delivery_id", snap.DeliveryID),
				slog.String("error", err.Error()),
			)
			e.dispatcher.ReportError(&HandlerError{
				ThreadID:   threadID,
				DeliveryID: snap.DeliveryID,
				Err:        err,
			})
		}
	}

	// 6-7. Drop the frozen slice from the live buffer, keep everything that
	// arrived during handling, and advance the watermark.
	e.mu.Lock()
	buf = e.bufferLocked(threadID)
	removed := buf.retainFrom(cutoff)
	e.buffered -= removed
	metrics.BufferedMessages.Set(float64(e.buffered))
	e.watermarks[threadID] = watermarkFor(frozen)
	e.mu.Unlock()
}

// resolveTrigger picks the delivery's trigger record: the supplied message,
// else the chronologically last frozen message, else a synthetic empty
// placeholder.
func (e *Engine) resolveTrigger(threadID string, trigger *platform.Message, frozen []platform.Message) platform.Message {
	if trigger != nil {
		return *trigger
	}
	if len(frozen) > 0 {
		return frozen[len(frozen)-1]
	}
	return platform.Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		SenderID:  "system",
		CreatedAt: time.Now(),
	}
}

// watermarkFor computes the new watermark from the frozen slice: the last
// message's embedded timestamp (message time, not local wall clock, to avoid
// clock-skew gaps), plus every frozen ID sharing that exact timestamp. An
// empty slice falls back to the current time.
func watermarkFor(frozen []platform.Message) watermark {
	if len(frozen) == 0 {
		return watermark{ts: time.Now().UnixNano(), ids: map[string]struct{}{}}
	}
	ts := frozen[len(frozen)-1].CreatedAt.UnixNano()
	ids := make(map[string]struct{})
	for _, m := range frozen {
		if m.CreatedAt.UnixNano() == ts {
			ids[m.ID] = struct{}{}
		}
	}
	return watermark{ts: ts, ids: ids}
}

// ensureContext returns cached thread metadata, participants and artifacts,
// fetching what is missing. A failed fetch yields a degraded placeholder
// rather than failing the delivery.
func (e *Engine) ensureContext(ctx context.Context, threadID string) (platform.Thread, []platform.Participant, []platform.Artifact, bool) {
	e.mu.Lock()
	thread, haveThread := e.threads[threadID]
	participants, haveParts := e.participants[threadID]
	_, haveArts := e.artifacts[threadID]
	e.mu.Unlock()

	degraded := false
	if (!haveThread || !haveParts || !haveArts) && e.fetcher != nil {
		// singleflight collapses concurrent deliveries fetching the same
		// thread. Only missing pieces are fetched; event-populated caches
		// are authoritative.
		_, err, _ := e.group.Do(threadID, func() (any, error) {
			return nil, e.refreshContext(ctx, threadID, !haveThread, !haveParts, !haveArts)
		})
		if err != nil {
			degraded = true
			metrics.DegradedFetches.Inc()
			e.log.WithThread(threadID).Warn("metadata fetch failed, using placeholder",
				slog.String("error", err.Error()),
			)
		}
		e.mu.Lock()
		thread, haveThread = e.threads[threadID]
		participants = e.participants[threadID]
		e.mu.Unlock()
	}
	if !haveThread {
		degraded = true
		thread = platform.Thread{ID: threadID, Title: threadID, Status: "unknown"}
	}

	e.mu.Lock()
	arts := make([]platform.Artifact, 0, len(e.artifacts[threadID]))
	for _, a := range e.artifacts[threadID] {
		arts = append(arts, a)
	}
	parts := append([]platform.Participant(nil), participants...)
	e.mu.Unlock()
	sortArtifacts(arts)

	return thread, parts, arts, degraded
}

func sortArtifacts(arts []platform.Artifact) {
	sort.Slice(arts, func(i, j int) bool { return arts[i].Key < arts[j].Key })
}

// refreshContext fetches the requested pieces of thread context, caching
// whatever succeeds before reporting the first failure.
func (e *Engine) refreshContext(ctx context.Context, threadID string, needThread, needParts, needArts bool) error {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	var firstErr error
	if needThread {
		if thread, err := e.fetcher.GetThread(fetchCtx, threadID); err != nil {
			firstErr = err
		} else {
			e.mu.Lock()
			e.threads[threadID] = thread
			e.mu.Unlock()
		}
	}
	if needParts {
		if parts, err := e.fetcher.ListParticipants(fetchCtx, threadID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			e.mu.Lock()
			e.participants[threadID] = parts
			e.mu.Unlock()
		}
	}
	if needArts {
		if arts, err := e.fetcher.ListArtifacts(fetchCtx, threadID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			byKey := make(map[string]platform.Artifact, len(arts))
			for _, a := range arts {
				byKey[a.Key] = a
			}
			e.mu.Lock()
			e.artifacts[threadID] = byKey
			e.mu.Unlock()
		}
	}
	return firstErr
}

func (e *Engine) bufferLocked(threadID string) *threadBuffer {
	buf, ok := e.buffers[threadID]
	if !ok {
		buf = &threadBuffer{}
		e.buffers[threadID] = buf
	}
	return buf
}

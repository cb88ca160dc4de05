package conversation

import "github.com/loomworks/loom-go/pkg/platform"

// threadBuffer is the bounded FIFO of not-yet-delivered messages for one
// thread. appended counts every message ever appended, so a position in the
// stream survives cap-trimming and delivery-clearing: absolute index =
// appended - len(msgs) + slice index.
type threadBuffer struct {
	msgs     []platform.Message
	appended int
}

// start returns the absolute index of the first buffered message.
func (b *threadBuffer) start() int {
	return b.appended - len(b.msgs)
}

// append adds msg, dropping the oldest entries beyond max. Returns how many
// were dropped.
func (b *threadBuffer) append(msg platform.Message, max int) int {
	b.msgs = append(b.msgs, msg)
	b.appended++
	dropped := 0
	if max > 0 && len(b.msgs) > max {
		dropped = len(b.msgs) - max
		b.msgs = append([]platform.Message(nil), b.msgs[dropped:]...)
	}
	return dropped
}

// retainFrom keeps only messages at or beyond the absolute index cutoff.
// Returns how many were removed.
func (b *threadBuffer) retainFrom(cutoff int) int {
	from := cutoff - b.start()
	if from < 0 {
		from = 0
	}
	if from > len(b.msgs) {
		from = len(b.msgs)
	}
	removed := from
	b.msgs = append([]platform.Message(nil), b.msgs[from:]...)
	return removed
}

// watermark marks the boundary between delivered and not-yet-delivered
// messages: the last delivered timestamp plus the IDs of every delivered
// message sharing that exact timestamp, for tie-break deduplication.
type watermark struct {
	ts  int64 // unix nanoseconds
	ids map[string]struct{}
}

func (w watermark) valid() bool {
	return w.ts != 0
}

// covers reports whether the watermark already accounts for msg: anything
// strictly older, or at the exact watermark timestamp with a recorded ID.
func (w watermark) covers(msg platform.Message) bool {
	if !w.valid() {
		return false
	}
	t := msg.CreatedAt.UnixNano()
	if t < w.ts {
		return true
	}
	if t > w.ts {
		return false
	}
	_, ok := w.ids[msg.ID]
	return ok
}

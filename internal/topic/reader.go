package topic

import (
	"context"
	"fmt"
	"time"
)

// pollReadLimit caps how many records one poll iteration scans.
const pollReadLimit = 64

// pollSlice bounds each wait on the append notifier so cancellation is
// observed promptly.
const pollSlice = 50 * time.Millisecond

// Delivery is one in-flight record handed to a reader but not yet committed.
// It exists only in memory; on crash the record is redelivered from the
// group's committed offset.
type Delivery struct {
	Offset   uint64
	Envelope Envelope

	token AckToken
}

// Ack returns the opaque token used to commit this delivery later. Tokens
// must be round-tripped unchanged.
func (d Delivery) Ack() AckToken { return d.token }

// AckToken encapsulates what the engine needs to commit a delivery's cursor.
// Consumers must never synthesize one.
type AckToken struct {
	group  string
	offset uint64
}

// Reader consumes a topic on behalf of one consumer group. A Reader is owned
// by a single goroutine; the engine assumes at most one actively-polling
// reader per group.
type Reader struct {
	topic   *Topic
	service string
	group   string

	// pos is the next offset this handle will deliver. It starts at the
	// group's committed offset and advances past delivered-but-uncommitted
	// records; a new handle (or a restart) resets to the committed offset,
	// which is what drives redelivery.
	pos uint64

	// skipped holds offsets this handle passed over without delivery, either
	// filtered out or absent from the log (trimmed or undecodable); they are
	// folded into the cursor on the next commit.
	skipped map[uint64]struct{}

	filter deliveryFilter
}

// ReaderOption configures a Reader at bind time.
type ReaderOption func(*Reader) error

// WithFilter applies a CEL expression to deliveries; records that do not
// match are skipped without being handed to the caller.
func WithFilter(expr string) ReaderOption {
	return func(r *Reader) error {
		f, err := newDeliveryFilter(expr)
		if err != nil {
			return err
		}
		r.filter = f
		return nil
	}
}

// Group returns the consumer group this handle is bound to.
func (r *Reader) Group() string { return r.group }

// Poll returns the next envelope at or after the group's committed offset,
// or ok=false once timeout elapses with nothing deliverable. It returns
// promptly when ctx is cancelled.
func (r *Reader) Poll(ctx context.Context, timeout time.Duration) (Delivery, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if d, ok := r.next(); ok {
			return d, true
		}
		if ctx.Err() != nil {
			return Delivery{}, false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Delivery{}, false
		}
		wait := pollSlice
		if remaining < wait {
			wait = remaining
		}
		r.topic.log.waitForAppend(ctx, wait)
	}
}

// Receive blocks until a delivery is available or ctx is cancelled. The
// batch-indexing loop never uses this; its polls are always bounded so
// timeout-driven flushes can run.
func (r *Reader) Receive(ctx context.Context) (Delivery, error) {
	for {
		if d, ok := r.next(); ok {
			return d, nil
		}
		if err := ctx.Err(); err != nil {
			return Delivery{}, err
		}
		r.topic.log.waitForAppend(ctx, 0)
	}
}

// next scans forward from pos and returns the first filter-passing record.
func (r *Reader) next() (Delivery, bool) {
	if c := r.topic.log.committed(r.group); c > r.pos {
		r.pos = c
	}
	for {
		items, undecodable := r.topic.log.readFrom(r.pos, pollReadLimit)
		if undecodable > 0 {
			r.topic.metrics.encodeErrors.Add(uint64(undecodable))
		}
		if len(items) == 0 {
			return Delivery{}, false
		}
		for _, it := range items {
			// Offsets the scan did not return no longer exist in the log
			// (trimmed by retention or undecodable); record them so the
			// cursor can advance over the gap at commit time.
			for off := r.pos; off < it.Offset; off++ {
				r.skipped[off] = struct{}{}
			}
			r.pos = it.Offset + 1
			if !r.filter.match(it.Envelope) {
				r.skipped[it.Offset] = struct{}{}
				continue
			}
			r.topic.metrics.markReceived()
			return Delivery{
				Offset:   it.Offset,
				Envelope: it.Envelope,
				token:    AckToken{group: r.group, offset: it.Offset},
			}, true
		}
	}
}

// Commit advances the group's committed offset past d. Committing the same
// or an already-superseded delivery is a no-op, never an error.
func (r *Reader) Commit(d Delivery) error { return r.CommitAck(d.token) }

// CommitAck commits via an opaque token, e.g. one surfaced by the tick
// buffer after a source batch fully flushed.
func (r *Reader) CommitAck(t AckToken) error {
	if t.group != r.group {
		return fmt.Errorf("topic: ack token for group %q committed on reader bound to %q", t.group, r.group)
	}
	advanced, err := r.topic.log.commitCursor(r.group, t.offset, r.skipped)
	if err != nil {
		return err
	}
	if advanced {
		r.topic.metrics.committed.Add(1)
	}
	return nil
}

package tickbuffer

import (
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateBatch is returned when a source batch ID is added twice. The
// buffer refuses the add outright: partial re-adds would corrupt the
// completion count and can double-acknowledge.
var ErrDuplicateBatch = errors.New("tickbuffer: source batch already buffered")

// unit is one buffered element tagged with its source batch. A marker unit
// carries no value; it holds the ack of a batch that needed no writes and
// surfaces it when the flush front reaches its queue position.
type unit[T, A any] struct {
	value   T
	batchID string
	marker  bool
	ack     A
}

// batchState tracks how much of one source batch has been flushed. State is
// removed the instant flushed == total, which is what makes duplicate
// acknowledgment impossible by construction.
type batchState[A any] struct {
	ack     A
	total   int
	flushed int
}

// Buffer accumulates units across source batches. T is the unit type, A the
// opaque ack token round-tripped back to the caller on batch completion.
type Buffer[T, A any] struct {
	insertBatchSize int
	flushTimeout    time.Duration

	queue     []unit[T, A]
	states    map[string]*batchState[A]
	lastFlush time.Time

	now func() time.Time // test seam
}

// New validates the flush sizing and returns an empty buffer.
func New[T, A any](insertBatchSize int, flushTimeout time.Duration) (*Buffer[T, A], error) {
	if insertBatchSize <= 0 {
		return nil, fmt.Errorf("tickbuffer: insertBatchSize must be > 0, got %d", insertBatchSize)
	}
	if flushTimeout <= 0 {
		return nil, fmt.Errorf("tickbuffer: flushTimeout must be > 0, got %s", flushTimeout)
	}
	b := &Buffer[T, A]{
		insertBatchSize: insertBatchSize,
		flushTimeout:    flushTimeout,
		states:          map[string]*batchState[A]{},
		now:             time.Now,
	}
	b.lastFlush = b.now()
	return b, nil
}

// Len returns the number of buffered units.
func (b *Buffer[T, A]) Len() int { return len(b.queue) }

// FlushTimeout returns the configured timeout; the indexing loop pins its
// poll timeout to it.
func (b *Buffer[T, A]) FlushTimeout() time.Duration { return b.flushTimeout }

// AddUnits appends all units of one source batch in FIFO order. A source
// batch must be added in exactly one call carrying its full unit count;
// incremental additions are not supported.
func (b *Buffer[T, A]) AddUnits(units []T, sourceBatchID string, ack A) error {
	if len(units) == 0 {
		return errors.New("tickbuffer: empty unit slice")
	}
	if _, exists := b.states[sourceBatchID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateBatch, sourceBatchID)
	}
	b.states[sourceBatchID] = &batchState[A]{ack: ack, total: len(units)}
	for _, u := range units {
		b.queue = append(b.queue, unit[T, A]{value: u, batchID: sourceBatchID})
	}
	return nil
}

// AddCompleted queues the ack of a source batch that contributed no units (a
// skipped duplicate or an empty batch). The ack surfaces from the flush that
// reaches its position, after every batch queued before it has completed, so
// acks always surface in batch arrival order. Callers with an empty buffer
// should acknowledge directly instead; nothing is ahead of them.
func (b *Buffer[T, A]) AddCompleted(ack A) {
	b.queue = append(b.queue, unit[T, A]{marker: true, ack: ack})
}

// ShouldFlush reports whether the buffer reached its size threshold or has
// aged past the flush timeout while non-empty.
func (b *Buffer[T, A]) ShouldFlush() bool {
	if len(b.queue) >= b.insertBatchSize {
		return true
	}
	return len(b.queue) > 0 && b.now().Sub(b.lastFlush) >= b.flushTimeout
}

// Flush removes up to insertBatchSize units from the front of the queue and
// returns them together with the ack tokens of every source batch that is
// now fully flushed.
func (b *Buffer[T, A]) Flush() ([]T, []A) {
	return b.take(b.insertBatchSize)
}

// Drain removes every remaining unit regardless of insertBatchSize. It is
// the shutdown path: reusing the size-capped Flush for a final drain leaves
// residual units un-acked with no later flush to pick them up.
func (b *Buffer[T, A]) Drain() ([]T, []A) {
	return b.take(len(b.queue))
}

func (b *Buffer[T, A]) take(n int) ([]T, []A) {
	b.lastFlush = b.now()
	if len(b.queue) == 0 {
		return nil, nil
	}
	if n > len(b.queue) {
		n = len(b.queue)
	}
	// Markers directly behind the taken prefix have nothing left to write;
	// complete them in this flush rather than waiting for the next one.
	for n < len(b.queue) && b.queue[n].marker {
		n++
	}
	out := make([]T, 0, n)
	var completed []A
	for _, u := range b.queue[:n] {
		if u.marker {
			completed = append(completed, u.ack)
			continue
		}
		out = append(out, u.value)
		st := b.states[u.batchID]
		st.flushed++
		if st.flushed == st.total {
			completed = append(completed, st.ack)
			delete(b.states, u.batchID)
		}
	}
	b.queue = append(b.queue[:0], b.queue[n:]...)
	return out, completed
}

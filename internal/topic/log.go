package topic

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/conveyor/internal/storage/pebble"
)

// topicLog is the append-only record store for one topic. It is written only by
// the coalescer worker; offsets are assigned under mu and start at 1.
type topicLog struct {
	db    *pebblestore.DB
	topic string

	mu       sync.Mutex
	lastSeq  uint64
	notifyCh chan struct{}

	cursorMu sync.Mutex
	cursors  map[string]uint64 // group -> next offset to deliver
}

// openLog loads the last assigned offset from metadata if present.
func openLog(db *pebblestore.DB, topic string) (*topicLog, error) {
	l := &topicLog{db: db, topic: topic, notifyCh: make(chan struct{}), cursors: map[string]uint64{}}
	meta, err := db.Get(keyLogMeta(topic))
	if err == nil && len(meta) >= 8 {
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	return l, nil
}

// append persists the envelope as the next record and returns its offset.
func (l *topicLog) append(ctx context.Context, env Envelope) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	seq := l.lastSeq + 1
	if err := b.Set(keyLogEntry(l.topic, seq), EncodeEnvelope(env), nil); err != nil {
		return 0, err
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], seq)
	if err := b.Set(keyLogMeta(l.topic), meta[:], nil); err != nil {
		return 0, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	l.lastSeq = seq

	// wake poll waiters
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return seq, nil
}

// item is one decoded record with its offset.
type item struct {
	Offset   uint64
	Envelope Envelope
}

// readFrom returns up to limit decodable records at or after start.
// Undecodable records are skipped and counted.
func (l *topicLog) readFrom(start uint64, limit int) ([]item, int) {
	low, hi := entryBounds(l.topic)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return nil, 0
	}
	defer iter.Close()

	if limit <= 0 {
		limit = 1
	}
	items := make([]item, 0, limit)
	skipped := 0
	startKey := keyLogEntry(l.topic, start)
	if !iter.SeekGE(startKey) {
		return items, 0
	}
	for iter.Valid() && len(items) < limit {
		seq := binary.BigEndian.Uint64(iter.Key()[len(startKey)-8:])
		env, ok := DecodeEnvelope(iter.Value())
		if ok {
			items = append(items, item{Offset: seq, Envelope: env})
		} else {
			skipped++
		}
		if !iter.Next() {
			break
		}
	}
	return items, skipped
}

// last returns the highest assigned offset.
func (l *topicLog) last() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// waitForAppend blocks until a new append occurs, the timeout elapses, or ctx
// is cancelled. Returns true only when woken by an append.
func (l *topicLog) waitForAppend(ctx context.Context, timeout time.Duration) bool {
	l.mu.Lock()
	ch := l.notifyCh
	l.mu.Unlock()
	if timeout <= 0 {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

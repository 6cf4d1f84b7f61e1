package topic

import (
	"context"

	"github.com/cockroachdb/pebble"
)

// trimOlderThan deletes records whose write timestamp is before cutoffMs.
// Deletes are committed in batches of up to batchLimit keys. Returns the
// number of deleted records.
//
// Only called from the coalescer worker, so it never races an append.
func (t *Topic) trimOlderThan(cutoffMs int64, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}
	low, hi := entryBounds(t.name)
	iter, err := t.log.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	ctx := context.Background()
	deleted := 0
	for ok := iter.First(); ok; {
		b := t.log.db.NewBatch()
		n := 0
		for ok && n < batchLimit {
			ms, okTs := envelopeTimestamp(iter.Value())
			if !okTs || ms >= cutoffMs {
				// Offsets are time-ordered; the first record at or past the
				// cutoff ends the scan.
				ok = false
				break
			}
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			deleted++
			n++
			ok = iter.Next()
		}
		if n > 0 {
			if err := t.log.db.CommitBatch(ctx, b); err != nil {
				b.Close()
				return deleted, err
			}
		}
		b.Close()
		if n == 0 {
			break
		}
	}
	if deleted >= 4096 {
		_ = t.log.db.CompactRange(low, hi)
	}
	return deleted, nil
}

package topic

import "encoding/binary"

// Cursor semantics: the durable value for t/{topic}/c/{group} is the next
// offset to deliver. A missing cursor means 1 (deliver from the start of the
// log). Commit advances the cursor to offset+1 only when offset is exactly
// the committed position; committing a superseded delivery is a no-op.

// committed returns the group's next offset to deliver.
func (l *topicLog) committed(group string) uint64 {
	l.cursorMu.Lock()
	defer l.cursorMu.Unlock()
	return l.committedLocked(group)
}

func (l *topicLog) committedLocked(group string) uint64 {
	if next, ok := l.cursors[group]; ok {
		return next
	}
	next := uint64(1)
	if b, err := l.db.Get(keyCursor(l.topic, group)); err == nil && len(b) >= 8 {
		next = binary.BigEndian.Uint64(b[:8])
	}
	l.cursors[group] = next
	return next
}

// commitCursor advances the group cursor past offset. The skipped set holds
// offsets the reader passed over without delivery (filtered, trimmed away,
// undecodable); a contiguous run of skipped offsets at the committed position
// is rolled over before the delivery-order check, and another run after the
// committed offset is rolled over in the same durable write, so a gap at the
// cursor can never wedge the group. Returns whether the cursor advanced.
func (l *topicLog) commitCursor(group string, offset uint64, skipped map[uint64]struct{}) (bool, error) {
	l.cursorMu.Lock()
	defer l.cursorMu.Unlock()

	next := l.committedLocked(group)
	for next < offset {
		if _, ok := skipped[next]; !ok {
			break
		}
		next++
	}
	if offset != next {
		// Same or superseded delivery: idempotent no-op. A future offset is
		// equally a no-op; commits apply strictly in delivery order.
		return false, nil
	}
	next = offset + 1
	for {
		if _, ok := skipped[next]; !ok {
			break
		}
		next++
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], next)
	if err := l.db.Set(keyCursor(l.topic, group), b[:]); err != nil {
		return false, err
	}
	l.cursors[group] = next
	for off := range skipped {
		if off < next {
			delete(skipped, off)
		}
	}
	return true, nil
}

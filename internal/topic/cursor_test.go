package topic

import (
	"context"
	"testing"

	pebblestore "github.com/rzbill/conveyor/internal/storage/pebble"
)

func newTestLog(t *testing.T, db *pebblestore.DB) *topicLog {
	t.Helper()
	l, err := openLog(db, "t")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return l
}

func TestCursorDefaultsToOne(t *testing.T) {
	l := newTestLog(t, newTestDB(t))
	if got := l.committed("g1"); got != 1 {
		t.Fatalf("fresh group cursor: got %d want 1", got)
	}
}

func TestCommitCursorStrictEquality(t *testing.T) {
	l := newTestLog(t, newTestDB(t))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := l.append(ctx, NewEnvelope("evt", []byte{byte(i)})); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// Future offset is a no-op; commits apply strictly in delivery order.
	advanced, err := l.commitCursor("g1", 2, nil)
	if err != nil {
		t.Fatalf("commit future: %v", err)
	}
	if advanced {
		t.Fatalf("future commit advanced the cursor")
	}
	if got := l.committed("g1"); got != 1 {
		t.Fatalf("cursor moved on future commit: %d", got)
	}

	// Exact match advances.
	advanced, err = l.commitCursor("g1", 1, nil)
	if err != nil || !advanced {
		t.Fatalf("commit 1: advanced=%v err=%v", advanced, err)
	}
	if got := l.committed("g1"); got != 2 {
		t.Fatalf("cursor after commit 1: got %d want 2", got)
	}

	// Recommitting the same delivery is an idempotent no-op.
	advanced, err = l.commitCursor("g1", 1, nil)
	if err != nil {
		t.Fatalf("recommit: %v", err)
	}
	if advanced {
		t.Fatalf("recommit advanced the cursor")
	}
	if got := l.committed("g1"); got != 2 {
		t.Fatalf("cursor regressed: %d", got)
	}
}

func TestCommitCursorRollsForwardSkipped(t *testing.T) {
	l := newTestLog(t, newTestDB(t))
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := l.append(ctx, NewEnvelope("evt", []byte{byte(i)})); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// Offsets 2 and 3 were filtered without delivery; committing 1 should
	// land the cursor on 4.
	skipped := map[uint64]struct{}{2: {}, 3: {}}
	advanced, err := l.commitCursor("g1", 1, skipped)
	if err != nil || !advanced {
		t.Fatalf("commit: advanced=%v err=%v", advanced, err)
	}
	if got := l.committed("g1"); got != 4 {
		t.Fatalf("cursor after skip roll-forward: got %d want 4", got)
	}
	if len(skipped) != 0 {
		t.Fatalf("skipped offsets not consumed: %v", skipped)
	}
}

func TestCommitCursorRollsOverLeadingSkips(t *testing.T) {
	l := newTestLog(t, newTestDB(t))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := l.append(ctx, NewEnvelope("evt", []byte{byte(i)})); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// Offsets 1 and 2 were passed over without delivery, so the first
	// delivered record is 3. Its commit must walk over the gap instead of
	// failing the delivery-order check and wedging the group.
	skipped := map[uint64]struct{}{1: {}, 2: {}}
	advanced, err := l.commitCursor("g1", 3, skipped)
	if err != nil || !advanced {
		t.Fatalf("commit over leading skips: advanced=%v err=%v", advanced, err)
	}
	if got := l.committed("g1"); got != 4 {
		t.Fatalf("cursor after leading-skip commit: got %d want 4", got)
	}
	if len(skipped) != 0 {
		t.Fatalf("skipped offsets not consumed: %v", skipped)
	}

	// A superseded delivery stays a no-op even with a populated skip set.
	advanced, err = l.commitCursor("g1", 3, map[uint64]struct{}{5: {}})
	if err != nil || advanced {
		t.Fatalf("superseded commit: advanced=%v err=%v", advanced, err)
	}
}

func TestCursorPersistsAcrossReopen(t *testing.T) {
	db := newTestDB(t)
	l := newTestLog(t, db)
	ctx := context.Background()
	if _, err := l.append(ctx, NewEnvelope("evt", []byte("a"))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.commitCursor("g1", 1, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	l2 := newTestLog(t, db)
	if got := l2.committed("g1"); got != 2 {
		t.Fatalf("cursor after reopen: got %d want 2", got)
	}
}

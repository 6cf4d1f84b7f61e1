package idempotency

import (
	"errors"
	"testing"

	pebblestore "github.com/rzbill/conveyor/internal/storage/pebble"
	logpkg "github.com/rzbill/conveyor/pkg/log"
)

func newTestStore(t *testing.T, scope string) *PebbleStore {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPebbleStore(db, scope)
}

func TestPebbleStoreSeenMark(t *testing.T) {
	s := newTestStore(t, "g1")
	seen, err := s.Seen("batch-1")
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Fatalf("fresh key reported seen")
	}
	if err := s.Mark("batch-1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	seen, err = s.Seen("batch-1")
	if err != nil || !seen {
		t.Fatalf("marked key not seen: seen=%v err=%v", seen, err)
	}
}

func TestPebbleStoreScopesIsolated(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	a := NewPebbleStore(db, "group-a")
	b := NewPebbleStore(db, "group-b")
	if err := a.Mark("batch-1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if seen, _ := b.Seen("batch-1"); seen {
		t.Fatalf("mark leaked across scopes")
	}
}

func TestGateRoundTrip(t *testing.T) {
	g := New(newTestStore(t, "g1"), logpkg.NewNop())
	if g.IsProcessed("batch-1") {
		t.Fatalf("fresh batch reported processed")
	}
	g.MarkProcessed("batch-1")
	if !g.IsProcessed("batch-1") {
		t.Fatalf("marked batch not reported processed")
	}
}

type failingStore struct{}

func (failingStore) Seen(string) (bool, error) { return false, errors.New("store down") }
func (failingStore) Mark(string) error         { return errors.New("store down") }

// A broken store must degrade the gate to a no-op, never block processing.
func TestGateFailsOpen(t *testing.T) {
	g := New(failingStore{}, logpkg.NewNop())
	if g.IsProcessed("batch-1") {
		t.Fatalf("failing store must report not processed")
	}
	// MarkProcessed must swallow the failure.
	g.MarkProcessed("batch-1")
}

package runtime

import (
	"context"
	"testing"

	cfgpkg "github.com/rzbill/conveyor/internal/config"
	pebblestore "github.com/rzbill/conveyor/internal/storage/pebble"
)

func TestOpenCloseHealth(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestOpenTopicCached(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	a, err := rt.OpenTopic("batches")
	if err != nil {
		t.Fatalf("open topic: %v", err)
	}
	b, err := rt.OpenTopic("batches")
	if err != nil {
		t.Fatalf("open topic again: %v", err)
	}
	if a != b {
		t.Fatalf("expected cached topic instance")
	}
	if len(rt.Topics()) != 1 {
		t.Fatalf("expected one open topic")
	}
}

func TestOpenTopicUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := cfgpkg.Default()
	cfg.TopicDefaults.QueueCapacity = 8
	rt, err := Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	tp, err := rt.OpenTopic("small")
	if err != nil {
		t.Fatalf("open topic: %v", err)
	}
	w, err := tp.OpenWriter("test")
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if err := w.Send("t", []byte("x")); err != nil {
		t.Fatalf("send: %v", err)
	}
}

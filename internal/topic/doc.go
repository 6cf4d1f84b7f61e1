// Package topic implements Conveyor's durable topic engine.
//
// # Overview
//
// A Topic is an append-only log of Envelopes persisted in Pebble, written by
// a single drain goroutine (the coalescer) and read independently by named
// consumer groups. Keys are lexicographically ordered for efficient range
// scans:
//   - t/{topic}/m          (log metadata: lastSeq)
//   - t/{topic}/e/{seq_be8} (entries)
//   - t/{topic}/c/{group}  (durable group cursors: next offset to deliver)
//
// Envelopes are framed as: id(16B) | ts_ms(8B BE) | varint typeLen | type |
// payload | crc32c(all preceding).
//
// # Delivery model
//
// Producers call Writer.Send, which enqueues onto a bounded channel and
// returns once enqueued; durability is asynchronous behind the single
// coalescer worker. Readers bind to a consumer group and poll:
//
//	w, _ := t.OpenWriter("ingest")
//	_ = w.Send("batch-notice", payload)
//
//	r, _ := t.OpenReader("indexer", "indexer-group")
//	if d, ok := r.Poll(ctx, time.Second); ok {
//		// process, then acknowledge explicitly
//		_ = r.Commit(d)
//	}
//
// Delivery is at-least-once: the cursor advances only on Commit, so a crash
// between delivery and processing redelivers from the committed offset on
// restart. Commit is idempotent; committing a superseded delivery is a no-op.
//
// Multiple reader handles may share a group, but the engine assumes at most
// one actively-polling reader per group at a time. True competing consumers
// within one group (lease-based claims) are not provided here.
package topic

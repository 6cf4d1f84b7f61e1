// Package idempotency provides the duplicate-skip gate used by the batch
// indexing loop. The gate is purely a performance optimization: it may only
// ever cause redundant work, never data loss, because it fails open and is
// marked strictly after the corresponding delivery commits.
package idempotency

import (
	logpkg "github.com/rzbill/conveyor/pkg/log"
)

// Gate answers "was this source batch already processed?". Not safe for
// concurrent use; each loop instance owns one Gate (the underlying Store is
// shared and thread-safe).
type Gate struct {
	store  Store
	logger logpkg.Logger
}

// New builds a gate over store.
func New(store Store, logger logpkg.Logger) *Gate {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Gate{store: store, logger: logger.With(logpkg.Component("idempotency"))}
}

// IsProcessed reports whether sourceBatchID was fully processed before. On
// store failure it fails open (returns false): correctness never depends on
// this gate, only the amount of duplicate work does.
func (g *Gate) IsProcessed(sourceBatchID string) bool {
	seen, err := g.store.Seen(sourceBatchID)
	if err != nil {
		g.logger.Warn("seen-store lookup failed, failing open",
			logpkg.Str("source_batch", sourceBatchID), logpkg.Err(err))
		return false
	}
	return seen
}

// MarkProcessed records sourceBatchID as done. Callers must invoke this only
// after the batch's ack token has been committed; marking earlier would let
// a crash skip a batch whose units were never durably flushed. A failed mark
// is logged and ignored; the worst case is one redundant redelivery absorbed
// by the idempotent sink.
func (g *Gate) MarkProcessed(sourceBatchID string) {
	if err := g.store.Mark(sourceBatchID); err != nil {
		g.logger.Warn("failed to mark batch processed",
			logpkg.Str("source_batch", sourceBatchID), logpkg.Err(err))
	}
}

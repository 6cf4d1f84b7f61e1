package indexer

import "sync/atomic"

// Metrics tracks per-loop counters.
type Metrics struct {
	batchesProcessed atomic.Uint64
	unitsProcessed   atomic.Uint64
	batchesSkipped   atomic.Uint64

	bufferLen func() int
}

func newMetrics() *Metrics {
	return &Metrics{bufferLen: func() int { return 0 }}
}

// Snapshot is a point-in-time view of loop metrics.
type Snapshot struct {
	BatchesProcessed uint64 `json:"batches_processed"`
	UnitsProcessed   uint64 `json:"units_processed"`
	BatchesSkipped   uint64 `json:"batches_skipped"`
	BufferSize       int    `json:"buffer_size"`
}

// Snapshot returns current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		BatchesProcessed: m.batchesProcessed.Load(),
		UnitsProcessed:   m.unitsProcessed.Load(),
		BatchesSkipped:   m.batchesSkipped.Load(),
		BufferSize:       m.bufferLen(),
	}
}

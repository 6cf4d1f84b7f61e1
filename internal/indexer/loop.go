package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/conveyor/internal/idempotency"
	"github.com/rzbill/conveyor/internal/tickbuffer"
	"github.com/rzbill/conveyor/internal/topic"
	logpkg "github.com/rzbill/conveyor/pkg/log"
)

// drainTimeout bounds the final flush on shutdown.
const drainTimeout = 10 * time.Second

// Config carries per-loop tunables. Validation happens at New time.
type Config struct {
	// EnableBuffering turns on cross-batch accumulation via the tick buffer.
	EnableBuffering bool `json:"enableBuffering" yaml:"enableBuffering"`
	// InsertBatchSize is the flush size when buffering.
	InsertBatchSize int `json:"insertBatchSize" yaml:"insertBatchSize"`
	// FlushTimeoutMs bounds how long a partially-filled buffer may age. The
	// poll timeout is pinned to this value when buffering.
	FlushTimeoutMs int `json:"flushTimeoutMs" yaml:"flushTimeoutMs"`
	// PollTimeoutMs is the explicit fail-fast poll timeout for a
	// non-buffering loop. Ignored when buffering is enabled.
	PollTimeoutMs int `json:"pollTimeoutMs" yaml:"pollTimeoutMs"`
	// EnableIdempotency turns on the duplicate-skip gate.
	EnableIdempotency bool `json:"enableIdempotency" yaml:"enableIdempotency"`
}

// Validate rejects unusable parameter combinations.
func (c Config) Validate() error {
	if c.EnableBuffering {
		if c.InsertBatchSize <= 0 {
			return fmt.Errorf("indexer: insertBatchSize must be > 0, got %d", c.InsertBatchSize)
		}
		if c.FlushTimeoutMs <= 0 {
			return fmt.Errorf("indexer: flushTimeoutMs must be > 0, got %d", c.FlushTimeoutMs)
		}
		return nil
	}
	if c.PollTimeoutMs <= 0 {
		return fmt.Errorf("indexer: pollTimeoutMs must be > 0 for a non-buffering loop, got %d", c.PollTimeoutMs)
	}
	return nil
}

// pendingAck ties a topic ack token back to its source batch so the gate can
// be marked after the token commits.
type pendingAck struct {
	token   topic.AckToken
	batchID string
	// skipped marks a gate-skipped duplicate: its cursor still commits in
	// order, but it is already marked processed and is not re-counted.
	skipped bool
}

// Loop is one batch-indexing loop instance. It owns its reader handle, tick
// buffer, and gate exclusively; only the topic and the idempotency store
// behind them are shared. Run drives everything from a single goroutine.
type Loop[T any] struct {
	reader  *topic.Reader
	storage BatchReader[T]
	sink    UnitSink[T]
	gate    *idempotency.Gate
	buf     *tickbuffer.Buffer[T, pendingAck]

	cfg         Config
	pollTimeout time.Duration
	logger      logpkg.Logger
	metrics     *Metrics
}

// Option configures a Loop at construction.
type Option[T any] func(*Loop[T])

// WithGate enables the idempotency short-circuit. Ignored unless the config
// also sets EnableIdempotency.
func WithGate[T any](g *idempotency.Gate) Option[T] {
	return func(l *Loop[T]) { l.gate = g }
}

// WithLogger injects the loop's logger.
func WithLogger[T any](logger logpkg.Logger) Option[T] {
	return func(l *Loop[T]) { l.logger = logger }
}

// New validates cfg and builds a loop over the given collaborators.
func New[T any](reader *topic.Reader, storage BatchReader[T], sink UnitSink[T], cfg Config, opts ...Option[T]) (*Loop[T], error) {
	if reader == nil {
		return nil, fmt.Errorf("indexer: reader is nil")
	}
	if storage == nil {
		return nil, fmt.Errorf("indexer: storage is nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("indexer: sink is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Loop[T]{
		reader:  reader,
		storage: storage,
		sink:    sink,
		cfg:     cfg,
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logpkg.NewLogger()
	}
	l.logger = l.logger.With(logpkg.Component("indexer"), logpkg.Str("group", reader.Group()))
	if !cfg.EnableIdempotency {
		l.gate = nil
	}
	if cfg.EnableBuffering {
		flushTimeout := time.Duration(cfg.FlushTimeoutMs) * time.Millisecond
		buf, err := tickbuffer.New[T, pendingAck](cfg.InsertBatchSize, flushTimeout)
		if err != nil {
			return nil, err
		}
		l.buf = buf
		// Pinning the poll timeout to the flush timeout guarantees a
		// partially-filled buffer flushes within the flush window even when
		// no new notices arrive.
		l.pollTimeout = flushTimeout
		l.metrics.bufferLen = buf.Len
	} else {
		l.pollTimeout = time.Duration(cfg.PollTimeoutMs) * time.Millisecond
	}
	return l, nil
}

// Metrics returns the loop's counters.
func (l *Loop[T]) Metrics() *Metrics { return l.metrics }

// Run drives the loop until ctx is cancelled or processing fails. On clean
// shutdown it drains the buffer and commits everything the drain completed.
// A non-nil error means a delivery was left uncommitted; restarting the loop
// redelivers it.
func (l *Loop[T]) Run(ctx context.Context) error {
	l.logger.Info("loop started",
		logpkg.Bool("buffering", l.cfg.EnableBuffering),
		logpkg.Bool("idempotency", l.gate != nil),
		logpkg.Dur("poll_timeout", l.pollTimeout))

	for {
		if ctx.Err() != nil {
			return l.shutdown(ctx)
		}
		d, ok := l.reader.Poll(ctx, l.pollTimeout)
		if !ok {
			if ctx.Err() != nil {
				return l.shutdown(ctx)
			}
			// Timed out with nothing delivered: age-based flush check.
			if l.buf != nil && l.buf.ShouldFlush() {
				if err := l.flush(ctx); err != nil {
					return err
				}
			}
			continue
		}
		if err := l.process(ctx, d); err != nil {
			l.logger.Error("processing failed, leaving delivery uncommitted",
				logpkg.Uint64("offset", d.Offset), logpkg.Err(err))
			return err
		}
	}
}

// process handles one delivered batch notice.
func (l *Loop[T]) process(ctx context.Context, d topic.Delivery) error {
	notice, err := DecodeNotice(d.Envelope)
	if err != nil {
		return err
	}

	if l.gate != nil && l.gate.IsProcessed(notice.SourceBatchID) {
		// Duplicate publication of an already-processed batch: skip the
		// work, but the delivery still has to commit in order.
		l.metrics.batchesSkipped.Add(1)
		l.logger.Debug("skipping processed batch", logpkg.Str("source_batch", notice.SourceBatchID))
		return l.completeWithoutUnits(d, notice.SourceBatchID, true)
	}

	units, err := l.storage.ReadBatch(ctx, notice.StorageKey)
	if err != nil {
		return fmt.Errorf("read batch %q: %w", notice.StorageKey, err)
	}
	if len(units) == 0 {
		// Nothing to forward; the notice itself is complete.
		return l.completeWithoutUnits(d, notice.SourceBatchID, false)
	}

	if l.buf == nil {
		return l.forwardDirect(ctx, d, notice, units)
	}

	if err := l.buf.AddUnits(units, notice.SourceBatchID, pendingAck{token: d.Ack(), batchID: notice.SourceBatchID}); err != nil {
		// Double-adding a source batch would corrupt completion counts:
		// fatal precondition violation, never papered over.
		return err
	}
	if l.buf.ShouldFlush() {
		return l.flush(ctx)
	}
	return nil
}

// completeWithoutUnits finishes a delivery that needs no sink writes. While
// earlier batches' acks are still pending in the buffer, committing here
// would run ahead of delivery order and the cursor would refuse it; the ack
// instead queues behind the pending batches and surfaces from a later flush.
func (l *Loop[T]) completeWithoutUnits(d topic.Delivery, sourceBatchID string, skipped bool) error {
	if l.buf != nil && l.buf.Len() > 0 {
		l.buf.AddCompleted(pendingAck{token: d.Ack(), batchID: sourceBatchID, skipped: skipped})
		return nil
	}
	if err := l.reader.Commit(d); err != nil {
		return err
	}
	if !skipped {
		l.markProcessed(sourceBatchID)
		l.metrics.batchesProcessed.Add(1)
	}
	return nil
}

// forwardDirect is the non-buffering path: write this one batch's units and
// commit immediately once all of them succeeded.
func (l *Loop[T]) forwardDirect(ctx context.Context, d topic.Delivery, notice BatchNotice, units []T) error {
	if err := l.sink.WriteUnits(ctx, units); err != nil {
		return fmt.Errorf("write units for batch %q: %w", notice.SourceBatchID, err)
	}
	if err := l.reader.Commit(d); err != nil {
		return err
	}
	l.markProcessed(notice.SourceBatchID)
	l.metrics.batchesProcessed.Add(1)
	l.metrics.unitsProcessed.Add(uint64(len(units)))
	return nil
}

// flush writes one buffer's worth of units to the sink, then commits every
// source batch the flush completed and marks it processed.
func (l *Loop[T]) flush(ctx context.Context) error {
	units, completed := l.buf.Flush()
	return l.commitFlushed(ctx, units, completed)
}

func (l *Loop[T]) commitFlushed(ctx context.Context, units []T, completed []pendingAck) error {
	if len(units) > 0 {
		if err := l.sink.WriteUnits(ctx, units); err != nil {
			return fmt.Errorf("write units: %w", err)
		}
		l.metrics.unitsProcessed.Add(uint64(len(units)))
	}
	for _, pa := range completed {
		if err := l.reader.CommitAck(pa.token); err != nil {
			return err
		}
		if pa.skipped {
			continue
		}
		l.markProcessed(pa.batchID)
		l.metrics.batchesProcessed.Add(1)
	}
	return nil
}

// shutdown runs the final drain: everything still buffered is flushed in one
// uncapped call and committed before the loop stops.
func (l *Loop[T]) shutdown(ctx context.Context) error {
	if l.buf == nil {
		l.logger.Info("loop stopped")
		return nil
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	units, completed := l.buf.Drain()
	if err := l.commitFlushed(stopCtx, units, completed); err != nil {
		l.logger.Error("final drain failed; uncommitted batches will be redelivered", logpkg.Err(err))
		return err
	}
	l.logger.Info("loop stopped", logpkg.Int("drained_units", len(units)))
	return nil
}

func (l *Loop[T]) markProcessed(sourceBatchID string) {
	if l.gate != nil {
		l.gate.MarkProcessed(sourceBatchID)
	}
}

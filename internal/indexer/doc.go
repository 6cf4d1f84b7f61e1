// Package indexer runs the batch-indexing loop that ties the topic engine,
// the tick buffer, and the idempotency gate together.
//
// Per iteration: poll the topic for a batch notice, optionally short-circuit
// through the idempotency gate, read the batch's units from storage, buffer
// them (or forward directly when buffering is off), flush when the buffer
// says so, commit every ack the flush completed, and only then mark the
// batch processed. On shutdown the loop drains the buffer unconditionally so
// no buffered unit is silently stranded.
//
// The loop's only correctness mechanism is withholding Commit: storage-read
// and sink-write failures terminate the loop without committing, so the
// delivery is redelivered when the loop restarts. There is no retry timer at
// this layer; retry/backoff belongs to the sink. A poison notice that always
// fails therefore repeats until an external dead-letter mechanism steps in.
//
// Poll timeouts are never unbounded. A buffering loop pins its poll timeout
// to the flush timeout, which guarantees a partially-filled buffer still
// flushes within the flush window even when no new notices arrive.
package indexer

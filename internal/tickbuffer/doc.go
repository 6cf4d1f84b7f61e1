// Package tickbuffer accumulates variable-sized source batches of units into
// larger flush-sized chunks while tracking per-batch completion.
//
// The hard rule: a source batch's ack token is surfaced exactly once, and
// only after every one of its units has left the buffer through Flush or
// Drain. When a flush spans several source batches (three 100-unit batches
// folded into one 250-unit flush), acknowledging anything whose tail units
// are still buffered would lose those units permanently on a crash, because
// the topic never redelivers a committed offset. Per-batch completion counting
// is what allows large efficient flushes without that failure mode.
//
// A Buffer is not safe for concurrent use; it is owned by exactly one
// indexing loop.
package tickbuffer

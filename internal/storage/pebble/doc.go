// Package pebblestore wraps a Pebble database with the durability policy
// used by the topic engine. All Conveyor state (log entries, group cursors,
// idempotency marks, buffered batch payloads) lives in one keyspace so that
// a single WAL fsync policy governs the whole node.
package pebblestore

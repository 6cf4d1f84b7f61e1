package topic

import "encoding/binary"

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - t/{topic}/m           (log metadata: lastSeq)
// - t/{topic}/e/{seq_be8} (entries)
// - t/{topic}/c/{group}   (group cursor: next offset to deliver)

var (
	topicPrefix = []byte("t/")
	metaSuffix  = []byte("/m")
	entrySeg    = []byte("/e/")
	cursorSeg   = []byte("/c/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyLogMeta builds the log metadata key for a topic.
func keyLogMeta(topic string) []byte {
	k := make([]byte, 0, len(topic)+8)
	k = append(k, topicPrefix...)
	k = append(k, topic...)
	k = append(k, metaSuffix...)
	return k
}

// keyLogEntry builds the entry key with a big-endian offset for ordering.
func keyLogEntry(topic string, seq uint64) []byte {
	k := make([]byte, 0, len(topic)+16)
	k = append(k, topicPrefix...)
	k = append(k, topic...)
	k = append(k, entrySeg...)
	k = appendBE8(k, seq)
	return k
}

// keyCursor builds the durable cursor key for a consumer group.
func keyCursor(topic, group string) []byte {
	k := make([]byte, 0, len(topic)+len(group)+8)
	k = append(k, topicPrefix...)
	k = append(k, topic...)
	k = append(k, cursorSeg...)
	k = append(k, group...)
	return k
}

// entryBounds returns the [low, high) iterator bounds covering every entry
// of the topic.
func entryBounds(topic string) (low, hi []byte) {
	low = keyLogEntry(topic, 0)
	hi = append(keyLogEntry(topic, ^uint64(0)), 0x00)
	return low, hi
}

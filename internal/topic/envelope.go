package topic

import (
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/google/uuid"
)

// Envelope is one durable, immutable log record. The ID is generated once by
// the producer and survives redelivery, so downstream consumers can use it as
// an idempotency key.
type Envelope struct {
	ID          uuid.UUID
	TimestampMs int64
	PayloadType string
	Payload     []byte
}

// NewEnvelope wraps a payload with a fresh ID and the current timestamp.
func NewEnvelope(payloadType string, payload []byte) Envelope {
	return Envelope{
		ID:          uuid.New(),
		TimestampMs: time.Now().UnixMilli(),
		PayloadType: payloadType,
		Payload:     payload,
	}
}

// Framing: id(16B) | ts_ms(8B BE) | varint typeLen | type | payload | crc32c.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeEnvelope serializes env into the on-disk framing.
func EncodeEnvelope(env Envelope) []byte {
	out := make([]byte, 0, 16+8+10+len(env.PayloadType)+len(env.Payload)+4)
	out = append(out, env.ID[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(env.TimestampMs))
	out = append(out, ts[:]...)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(env.PayloadType)))
	out = append(out, tmp[:n]...)
	out = append(out, env.PayloadType...)
	out = append(out, env.Payload...)
	crc := crc32.Update(0, castagnoli, out)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

// DecodeEnvelope parses a framed record. Returns false on truncation or
// checksum mismatch.
func DecodeEnvelope(b []byte) (Envelope, bool) {
	if len(b) < 16+8+1+4 {
		return Envelope{}, false
	}
	body := b[:len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Update(0, castagnoli, body) != expect {
		return Envelope{}, false
	}
	var env Envelope
	copy(env.ID[:], body[:16])
	env.TimestampMs = int64(binary.BigEndian.Uint64(body[16:24]))
	tlen, n := binary.Uvarint(body[24:])
	if n <= 0 || 24+n+int(tlen) > len(body) {
		return Envelope{}, false
	}
	env.PayloadType = string(body[24+n : 24+n+int(tlen)])
	env.Payload = append([]byte(nil), body[24+n+int(tlen):]...)
	return env, true
}

// envelopeTimestamp reads the write timestamp without a full decode. Used by
// retention trims, which only need the fixed-position ts field.
func envelopeTimestamp(b []byte) (int64, bool) {
	if len(b) < 16+8+1+4 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(b[16:24])), true
}

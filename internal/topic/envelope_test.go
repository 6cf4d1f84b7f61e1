package topic

import (
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope("batch-notice", []byte(`{"k":"v"}`))
	got, ok := DecodeEnvelope(EncodeEnvelope(env))
	if !ok {
		t.Fatalf("decode failed")
	}
	if got.ID != env.ID {
		t.Fatalf("id mismatch")
	}
	if got.TimestampMs != env.TimestampMs {
		t.Fatalf("ts mismatch")
	}
	if got.PayloadType != env.PayloadType {
		t.Fatalf("type mismatch: %q", got.PayloadType)
	}
	if string(got.Payload) != string(env.Payload) {
		t.Fatalf("payload mismatch: %q", got.Payload)
	}
}

func TestEnvelopeEmptyPayload(t *testing.T) {
	env := NewEnvelope("", nil)
	got, ok := DecodeEnvelope(EncodeEnvelope(env))
	if !ok {
		t.Fatalf("decode failed")
	}
	if got.PayloadType != "" || len(got.Payload) != 0 {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	b := EncodeEnvelope(NewEnvelope("evt", []byte("payload")))

	// flip a payload byte
	bad := append([]byte(nil), b...)
	bad[30] ^= 0xff
	if _, ok := DecodeEnvelope(bad); ok {
		t.Fatalf("corrupted record decoded")
	}

	// truncation
	if _, ok := DecodeEnvelope(b[:10]); ok {
		t.Fatalf("truncated record decoded")
	}
	if _, ok := DecodeEnvelope(nil); ok {
		t.Fatalf("empty record decoded")
	}
}

func TestEnvelopeTimestampFastPath(t *testing.T) {
	env := NewEnvelope("evt", []byte("p"))
	b := EncodeEnvelope(env)
	ms, ok := envelopeTimestamp(b)
	if !ok || ms != env.TimestampMs {
		t.Fatalf("fast ts: got %d ok=%v want %d", ms, ok, env.TimestampMs)
	}
	if _, ok := envelopeTimestamp(b[:8]); ok {
		t.Fatalf("short record yielded timestamp")
	}
}

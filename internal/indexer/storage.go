package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rzbill/conveyor/internal/topic"
)

// NoticePayloadType tags envelopes carrying a BatchNotice.
const NoticePayloadType = "batch-notice"

// BatchNotice is what producers publish on the topic: an availability
// notification for a source batch whose raw units live in external storage.
type BatchNotice struct {
	SourceBatchID string `json:"source_batch_id"`
	StorageKey    string `json:"storage_key"`
}

// EncodeNotice serializes a notice for Writer.Send.
func EncodeNotice(n BatchNotice) ([]byte, error) {
	if n.SourceBatchID == "" {
		return nil, fmt.Errorf("indexer: notice missing source batch id")
	}
	if n.StorageKey == "" {
		return nil, fmt.Errorf("indexer: notice missing storage key")
	}
	return json.Marshal(n)
}

// DecodeNotice parses a delivered envelope back into a notice.
func DecodeNotice(env topic.Envelope) (BatchNotice, error) {
	if env.PayloadType != NoticePayloadType {
		return BatchNotice{}, fmt.Errorf("indexer: unexpected payload type %q", env.PayloadType)
	}
	var n BatchNotice
	if err := json.Unmarshal(env.Payload, &n); err != nil {
		return BatchNotice{}, fmt.Errorf("indexer: decode notice: %w", err)
	}
	if n.SourceBatchID == "" || n.StorageKey == "" {
		return BatchNotice{}, fmt.Errorf("indexer: notice missing fields")
	}
	return n, nil
}

// BatchReader retrieves a source batch's units from external storage.
type BatchReader[T any] interface {
	ReadBatch(ctx context.Context, storageKey string) ([]T, error)
}

// UnitSink receives flushed units. Implementations are assumed idempotent
// under re-application (upsert-by-key semantics): redelivery after a crash
// re-writes units the sink has already seen.
type UnitSink[T any] interface {
	WriteUnits(ctx context.Context, units []T) error
}

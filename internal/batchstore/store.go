// Package batchstore is a Pebble-backed implementation of the indexer's
// storage collaborators: staged source-batch payloads on the read side and
// an upsert-by-key unit sink on the write side. Remote backends can replace
// it by implementing the same two interfaces.
package batchstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pebblestore "github.com/rzbill/conveyor/internal/storage/pebble"
)

// ErrBatchNotFound is returned by ReadBatch for an unknown storage key.
var ErrBatchNotFound = errors.New("batchstore: batch not found")

// Unit is one indexable element of a source batch. ID is the upsert key;
// writing the same unit twice is a no-op overwrite, which is what makes the
// sink safe under redelivery.
type Unit struct {
	ID   string `json:"id"`
	Data []byte `json:"data"`
}

// Store stages batch payloads under b/{key} and indexed units under u/{id}.
type Store struct {
	db *pebblestore.DB
}

// New returns a store over db.
func New(db *pebblestore.DB) *Store { return &Store{db: db} }

func batchKey(key string) []byte { return append([]byte("b/"), key...) }
func unitKey(id string) []byte   { return append([]byte("u/"), id...) }

// WriteBatch stages the units of one source batch under storageKey. This is
// the producer side of the contract.
func (s *Store) WriteBatch(storageKey string, units []Unit) error {
	if storageKey == "" {
		return fmt.Errorf("batchstore: empty storage key")
	}
	b, err := json.Marshal(units)
	if err != nil {
		return err
	}
	return s.db.Set(batchKey(storageKey), b)
}

// ReadBatch returns the staged units for storageKey.
func (s *Store) ReadBatch(ctx context.Context, storageKey string) ([]Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.db.Get(batchKey(storageKey))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrBatchNotFound, storageKey)
		}
		return nil, err
	}
	var units []Unit
	if err := json.Unmarshal(raw, &units); err != nil {
		return nil, fmt.Errorf("batchstore: decode batch %q: %w", storageKey, err)
	}
	return units, nil
}

// WriteUnits upserts units by ID in one atomic batch.
func (s *Store) WriteUnits(ctx context.Context, units []Unit) error {
	if len(units) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, u := range units {
		if u.ID == "" {
			return fmt.Errorf("batchstore: unit with empty id")
		}
		if err := b.Set(unitKey(u.ID), u.Data, nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}

// ReadUnit returns an indexed unit by ID, with ok=false when absent.
func (s *Store) ReadUnit(id string) (Unit, bool, error) {
	raw, err := s.db.Get(unitKey(id))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Unit{}, false, nil
		}
		return Unit{}, false, err
	}
	return Unit{ID: id, Data: raw}, true, nil
}

package idempotency

import (
	"errors"

	pebblestore "github.com/rzbill/conveyor/internal/storage/pebble"
)

// Store is the external "seen" keyspace behind the gate. Implementations
// must be safe for concurrent use: competing loop instances share one store.
type Store interface {
	// Seen reports whether key was previously marked.
	Seen(key string) (bool, error)
	// Mark records key as processed.
	Mark(key string) error
}

// PebbleStore keeps marks under idem/{scope}/{key}. The scope is typically
// the consumer group, so independent groups never shadow each other.
type PebbleStore struct {
	db    *pebblestore.DB
	scope string
}

// NewPebbleStore returns a store bound to one scope.
func NewPebbleStore(db *pebblestore.DB, scope string) *PebbleStore {
	return &PebbleStore{db: db, scope: scope}
}

func (s *PebbleStore) key(key string) []byte {
	k := make([]byte, 0, 5+len(s.scope)+1+len(key))
	k = append(k, "idem/"...)
	k = append(k, s.scope...)
	k = append(k, '/')
	k = append(k, key...)
	return k
}

// Seen reports whether key was marked.
func (s *PebbleStore) Seen(key string) (bool, error) {
	_, err := s.db.Get(s.key(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pebblestore.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Mark records key.
func (s *PebbleStore) Mark(key string) error {
	return s.db.Set(s.key(key), []byte{1})
}

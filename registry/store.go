package registry

import (
	"context"
	"sync"

	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// MemoryStore is an in-memory interfaces.SecretStore. Updates to the same
// secret are serialized; different secrets proceed independently.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[interfaces.SecretID]*interfaces.SecretRecord
	locks   map[interfaces.SecretID]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[interfaces.SecretID]*interfaces.SecretRecord),
		locks:   make(map[interfaces.SecretID]*sync.Mutex),
	}
}

// Get returns a copy of the stored record.
func (s *MemoryStore) Get(ctx context.Context, id interfaces.SecretID) (*interfaces.SecretRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

// Update applies fn to a copy of the current record and stores the result
// only if fn succeeds.
func (s *MemoryStore) Update(ctx context.Context, id interfaces.SecretID, fn func(current *interfaces.SecretRecord) (*interfaces.SecretRecord, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current := s.records[id].Clone()
	s.mu.RUnlock()

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	s.mu.Lock()
	s.records[id] = next.Clone()
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) lockFor(id interfaces.SecretID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

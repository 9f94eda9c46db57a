package session

import (
	"context"
	"errors"
	"maps"
	"sync"
)

// Store persists session values outside the process.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the persisted values for id.
	// Returns ErrNotFound if nothing is stored.
	Load(ctx context.Context, id string) (map[string]string, error)

	// Save replaces the persisted values for id.
	Save(ctx context.Context, id string, values map[string]string) error

	// Delete removes the persisted values for id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}

// Open creates the session for id and restores any values persisted in store.
// A nil store yields a fresh in-process session.
func Open(ctx context.Context, store Store, id string) (*Session, error) {
	s := New(id)
	if store == nil {
		return s, nil
	}

	values, err := store.Load(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return s, nil
	case err != nil:
		return nil, err
	}
	s.restore(values)
	return s, nil
}

// Persist saves s to store if it has unsaved changes.
func Persist(ctx context.Context, store Store, s *Session) error {
	if store == nil {
		return ErrNoStore
	}
	values, dirty := s.snapshot()
	if !dirty {
		return nil
	}
	if err := store.Save(ctx, s.ID(), values); err != nil {
		return err
	}
	s.clearDirty()
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	data map[string]map[string]string
	mu   sync.RWMutex
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]string)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, id string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return maps.Clone(values), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, id string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = maps.Clone(values)
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

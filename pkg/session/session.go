package session

import (
	"maps"
	"sync"
	"time"
)

// Session is a string key/value map bound to one client connection.
// It lives as long as the connection and is safe for concurrent use.
type Session struct {
	createdAt time.Time
	values    map[string]string
	id        string
	mu        sync.RWMutex
	dirty     bool
	isNew     bool
}

// New creates an empty session with the given ID.
func New(id string) *Session {
	return &Session{
		id:        id,
		values:    make(map[string]string),
		createdAt: time.Now(),
		isNew:     true,
	}
}

// ID returns the session identifier (the connection ID).
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Get returns the value for key, or "" if it is not set.
func (s *Session) Get(key string) string {
	v, _ := s.Lookup(key)
	return v
}

// Lookup returns the value for key and whether it was set.
func (s *Session) Lookup(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is set.
func (s *Session) Has(key string) bool {
	_, ok := s.Lookup(key)
	return ok
}

// Set stores a value and marks the session dirty.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.values[key]; ok && old == value {
		return
	}
	s.values[key] = value
	s.dirty = true
}

// Delete removes key. The session is marked dirty only if the key existed.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Len returns the number of stored keys.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Values returns a copy of all stored values.
func (s *Session) Values() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// IsDirty reports whether the session has unsaved changes.
func (s *Session) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// IsNew reports whether the session was created for this connection rather
// than restored from a Store.
func (s *Session) IsNew() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isNew
}

func (s *Session) restore(values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.values, values)
	s.isNew = false
}

func (s *Session) snapshot() (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values), s.dirty
}

func (s *Session) clearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

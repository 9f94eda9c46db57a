package internal

import (
	"net/url"
	"strings"
	"sync"
)

// Param is one decoded name/value pair from the query string, a form body or
// a multipart field. Params are immutable once added.
type Param struct {
	Name   string
	Value  string
	Size   int64
	IsPost bool
	IsFile bool
}

// ParamStore is the ordered set of a request's parameters. Repeated names are
// kept; lookups return the first occurrence.
type ParamStore struct {
	params []Param
	mu     sync.RWMutex
}

// Add appends a parameter.
func (s *ParamStore) Add(p Param) {
	s.mu.Lock()
	s.params = append(s.params, p)
	s.mu.Unlock()
}

// AddQuery decodes an application/x-www-form-urlencoded string and appends
// its pairs in the order they appear. Pairs that fail to decode are skipped
// and the first decoding error is returned.
func (s *ParamStore) AddQuery(raw string, isPost bool) error {
	var firstErr error
	s.mu.Lock()
	defer s.mu.Unlock()
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(name)
		if err == nil {
			value, err = url.QueryUnescape(value)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.params = append(s.params, Param{Name: name, Value: value, IsPost: isPost})
	}
	return firstErr
}

// Get returns the first parameter named name.
func (s *ParamStore) Get(name string) (Param, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Find returns the first parameter matching name and origin flags.
func (s *ParamStore) Find(name string, isPost, isFile bool) (Param, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.params {
		if p.Name == name && p.IsPost == isPost && p.IsFile == isFile {
			return p, true
		}
	}
	return Param{}, false
}

// Value returns the value of the first parameter named name, or "".
func (s *ParamStore) Value(name string) string {
	p, _ := s.Get(name)
	return p.Value
}

// All returns every parameter named name, in insertion order.
func (s *ParamStore) All(name string) []Param {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Param
	for _, p := range s.params {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}

// List returns a copy of all parameters.
func (s *ParamStore) List() []Param {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Param(nil), s.params...)
}

// Len returns the number of parameters.
func (s *ParamStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.params)
}

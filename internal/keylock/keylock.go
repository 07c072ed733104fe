// Package keylock tracks in-flight work by key within a single process.
package keylock

import (
	"sort"
	"sync"
)

// Set holds the keys currently marked as in flight. The zero value is not
// usable; create one with New.
type Set struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// New creates an empty Set.
func New() *Set {
	return &Set{held: make(map[string]struct{})}
}

// TryAcquire marks key as in flight. It returns ok=false without blocking if
// the key is already held. On success the returned release function must be
// called exactly once, typically via defer; extra calls are no-ops.
func (s *Set) TryAcquire(key string) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.held[key]; exists {
		return nil, false
	}
	s.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.held, key)
			s.mu.Unlock()
		})
	}, true
}

// Held reports whether key is currently in flight.
func (s *Set) Held(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[key]
	return ok
}

// Keys returns the in-flight keys sorted for deterministic output.
func (s *Set) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.held))
	for k := range s.held {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package snapshot keeps the most recent value per key in memory.
package snapshot

import "sync"

type Store[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

func NewStore[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{data: make(map[K]V)}
}

func (s *Store[K, V]) Set(k K, v V) {
	s.mu.Lock()
	s.data[k] = v
	s.mu.Unlock()
}

func (s *Store[K, V]) Get(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[k]
	return v, ok
}

func (s *Store[K, V]) Delete(k K) {
	s.mu.Lock()
	delete(s.data, k)
	s.mu.Unlock()
}

// All returns a copy of every stored value.
func (s *Store[K, V]) All() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[K]V, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

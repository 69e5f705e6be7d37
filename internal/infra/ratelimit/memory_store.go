package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process CounterStore for single-node deployments and
// tests. Expired counters are dropped lazily on access.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter

	now func() time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*memoryCounter), now: time.Now}
}

// Incr atomically increments the counter for key, creating it with the given
// ttl when absent or expired.
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &memoryCounter{expiresAt: now.Add(ttl)}
		s.counters[key] = c
	}
	c.count++

	// Sweep anything else that expired so the map stays bounded.
	for k, v := range s.counters {
		if now.After(v.expiresAt) {
			delete(s.counters, k)
		}
	}

	return c.count, nil
}

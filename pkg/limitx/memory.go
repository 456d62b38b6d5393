package limitx

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process CounterStore. It backs single-instance
// deployments and tests; multi-instance deployments need a shared store
// (see the sqlite rate-limit repository).
type MemoryStore struct {
	mu       sync.Mutex
	counters map[counterKey]*counterEntry
	blocks   map[blockKey]time.Time

	now func() time.Time
}

type counterKey struct {
	policy string
	key    string
	window int64
}

type blockKey struct {
	policy string
	key    string
}

type counterEntry struct {
	count int64
	// expiresAt is fixed when the window entry is first created and never
	// extended; entries die only by their window's natural rollover.
	expiresAt time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[counterKey]*counterEntry),
		blocks:   make(map[blockKey]time.Time),
		now:      time.Now,
	}
}

func (s *MemoryStore) Increment(_ context.Context, policy, key string, window int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ck := counterKey{policy: policy, key: key, window: window}
	entry, ok := s.counters[ck]
	if !ok || !entry.expiresAt.After(s.now()) {
		entry = &counterEntry{expiresAt: s.now().Add(ttl)}
		s.counters[ck] = entry
	}

	entry.count++
	s.maybeSweep()
	return entry.count, nil
}

func (s *MemoryStore) Count(_ context.Context, policy, key string, window int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counters[counterKey{policy: policy, key: key, window: window}]
	if !ok || !entry.expiresAt.After(s.now()) {
		return 0, nil
	}
	return entry.count, nil
}

func (s *MemoryStore) SetBlock(_ context.Context, policy, key string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[blockKey{policy: policy, key: key}] = until
	return nil
}

func (s *MemoryStore) Block(_ context.Context, policy, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bk := blockKey{policy: policy, key: key}
	until, ok := s.blocks[bk]
	if !ok {
		return time.Time{}, nil
	}
	if !until.After(s.now()) {
		delete(s.blocks, bk)
		return time.Time{}, nil
	}
	return until, nil
}

// maybeSweep drops expired entries opportunistically so ephemeral keys do
// not accumulate. Callers hold the mutex.
func (s *MemoryStore) maybeSweep() {
	if len(s.counters) < 4096 {
		return
	}
	now := s.now()
	for k, entry := range s.counters {
		if !entry.expiresAt.After(now) {
			delete(s.counters, k)
		}
	}
}

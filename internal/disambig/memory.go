package disambig

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store. Construct one per process and share
// the pointer.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store with the given TTL (DefaultTTL when <= 0).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// lookup returns the live entry for key, evicting it when expired.
// Caller holds s.mu.
func (s *MemoryStore) lookup(key string) (Entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	if e.expired(s.now(), s.ttl) {
		delete(s.entries, key)
		return Entry{}, false
	}
	return e, true
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return Entry{}, false
	}
	e.LastSeen = s.now()
	s.entries[key] = e
	return e.clone(), true
}

func (s *MemoryStore) Set(_ context.Context, key string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.LastSeen = now
	s.entries[key] = e.clone()
}

func (s *MemoryStore) Clear(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *MemoryStore) MarkPrompted(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok || e.Prompted {
		return false
	}
	e.Prompted = true
	e.LastSeen = s.now()
	s.entries[key] = e
	return true
}

func (s *MemoryStore) MarkResolved(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return false
	}
	delete(s.entries, key)
	return e.Pending
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MemoryStore is a process-local TTL cache with the same surface as
// RedisCache, used when Redis is disabled and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock overrides the store's clock. Test hook.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Get retrieves a value, reporting an error for missing or expired keys.
func (s *MemoryStore) Get(ctx context.Context, key string, value interface{}) error {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || (!entry.expiresAt.IsZero() && s.now().After(entry.expiresAt)) {
		return errors.New("key not found in cache")
	}
	if err := json.Unmarshal(entry.data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}
	return nil
}

// Set stores a value with an expiration; zero means no expiry.
func (s *MemoryStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	entry := memoryEntry{data: data}
	if expiration > 0 {
		entry.expiresAt = s.now().Add(expiration)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

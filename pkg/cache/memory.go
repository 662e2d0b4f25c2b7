package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value   []byte
	expires time.Time
}

// MemoryStore is an in-process LRU Store with per-entry expiry.
type MemoryStore struct {
	items *lru.Cache[string, entry]
	now   func() time.Time
}

// NewMemoryStore creates an LRU store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1024
	}
	// lru.New only fails for a non-positive size.
	items, _ := lru.New[string, entry](capacity)
	return &MemoryStore{items: items, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	ent, ok := s.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !ent.expires.IsZero() && !s.now().Before(ent.expires) {
		s.items.Remove(key)
		return nil, false, nil
	}
	return ent.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = s.now().Add(ttl)
	}
	s.items.Add(key, entry{value: value, expires: expires})
	return nil
}

// Len reports the number of entries currently held, expired or not.
func (s *MemoryStore) Len() int {
	return s.items.Len()
}

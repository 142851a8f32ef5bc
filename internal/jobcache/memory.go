package jobcache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process Store for single-instance deployments and tests.
// Expired keys are swept every cleanupInterval; reads never return them.
type MemoryStore struct {
	mu    sync.Mutex
	items *gocache.Cache
}

// NewMemoryStore creates a MemoryStore
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		items: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Set(key, value, expiration(ttl))
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Delete(key)
	return nil
}

// Update runs fn under the store lock, so it never conflicts
func (s *MemoryStore) Update(_ context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current string
	v, found := s.items.Get(key)
	if found {
		current = v.(string)
	}

	next, err := fn(current, found)
	if err != nil {
		return err
	}
	s.items.Set(key, next, expiration(ttl))
	return nil
}

// TTL returns the remaining lifetime of key, or false if the key is absent
func (s *MemoryStore) TTL(key string) (time.Duration, bool) {
	_, exp, ok := s.items.GetWithExpiration(key)
	if !ok {
		return 0, false
	}
	if exp.IsZero() {
		return 0, true
	}
	return time.Until(exp), true
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/u4s/turnover-cli/internal/core"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is an in-process TTL cache with least-recently-used eviction.
//
// The LRU owns ordering and the size bound and sweeps out entries that are
// past their TTL in wall-clock time. Validity is decided against the
// backend's own clock, which tests replace.
type MemoryBackend struct {
	ttl time.Duration
	now Clock

	mu  sync.Mutex
	lru *expirable.LRU[string, memoryEntry]
}

// NewMemoryBackend creates a new in-memory cache backend.
// Non-positive ttl or maxEntries fall back to the defaults; a nil clock uses time.Now.
func NewMemoryBackend(ttl time.Duration, maxEntries int, now Clock) *MemoryBackend {
	if ttl <= 0 {
		ttl = core.RequestCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = core.RequestCacheMaxEntries
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{
		ttl: ttl,
		now: now,
		lru: expirable.NewLRU[string, memoryEntry](maxEntries, nil, ttl),
	}
}

// Get returns a copy of the cached value and promotes it.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !b.now().Before(entry.expiresAt) {
		b.lru.Remove(key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

// Set stores a copy of value. Expired entries go first so that the size
// bound only ever evicts live ones.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.purgeExpired(now)
	b.lru.Add(key, memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: now.Add(b.ttl),
	})
	return nil
}

// Clear removes every entry.
func (b *MemoryBackend) Clear(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lru.Purge()
	return nil
}

// Len returns the number of entries not yet expired.
func (b *MemoryBackend) Len(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purgeExpired(b.now())
	return b.lru.Len(), nil
}

func (b *MemoryBackend) purgeExpired(now time.Time) {
	for _, key := range b.lru.Keys() {
		if entry, ok := b.lru.Peek(key); ok && !now.Before(entry.expiresAt) {
			b.lru.Remove(key)
		}
	}
}

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/u4s/turnover-cli/internal/config"
	"github.com/u4s/turnover-cli/internal/core"
)

// Manager fronts a Backend for the dashboard.
//
// Backend failures never fail a request: a read error is a miss and a
// write error only loses the entry. Both are logged.
//
// Keys are namespaced by the scope set for the current credential, so one
// backend can hold entries of several identities without serving one to
// another.
type Manager struct {
	backend Backend
	logger  *slog.Logger

	mu    sync.RWMutex
	scope string
}

// NewManager creates a cache manager. A nil backend uses an in-memory one
// with the default TTL and bound.
func NewManager(backend Backend, logger *slog.Logger) *Manager {
	if backend == nil {
		backend = NewMemoryBackend(core.RequestCacheTTL, core.RequestCacheMaxEntries, nil)
	}
	if logger == nil {
		logger = core.DiscardLogger()
	}
	return &Manager{backend: backend, logger: logger.With("component", "cache")}
}

// NewBackend builds the backend selected by cfg.
func NewBackend(cfg config.CacheConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBackend(cfg.TTL, cfg.MaxEntries, nil), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedisBackend(client, cfg.RedisPrefix, cfg.TTL, cfg.MaxEntries, nil), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

// SetScope namespaces the keys of every following Lookup and Store. An
// empty scope stores keys as given.
func (m *Manager) SetScope(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scope != scope {
		m.logger.Debug("cache scope changed", "scope", scope)
	}
	m.scope = scope
}

func (m *Manager) scoped(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.scope == "" {
		return key
	}
	return m.scope + ":" + key
}

// Lookup returns the cached body for key.
func (m *Manager) Lookup(ctx context.Context, key string) ([]byte, bool) {
	value, ok, err := m.backend.Get(ctx, m.scoped(key))
	if err != nil {
		m.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	if ok {
		m.logger.Debug("cache hit", "key", key)
	}
	return value, ok
}

// Store caches value under key.
func (m *Manager) Store(ctx context.Context, key string, value []byte) {
	if err := m.backend.Set(ctx, m.scoped(key), value); err != nil {
		m.logger.Warn("cache write failed", "key", key, "error", err)
		return
	}
	m.logger.Debug("cache store", "key", key, "bytes", len(value))
}

// Clear drops every entry of every scope.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.backend.Clear(ctx); err != nil {
		m.logger.Warn("cache clear failed", "error", err)
		return err
	}
	m.logger.Debug("cache cleared")
	return nil
}

// Len returns the number of live entries, or 0 when the backend fails.
func (m *Manager) Len(ctx context.Context) int {
	n, err := m.backend.Len(ctx)
	if err != nil {
		m.logger.Warn("cache len failed", "error", err)
		return 0
	}
	return n
}

// Package cache stores raw API responses for a short time so that switching
// back to an already loaded date range or drill-down does not hit the network.
//
// # Overview
//
// Every entry is a raw JSON body keyed by the request that produced it:
//
//	revenue-2024-03-01-2024-03-31-created
//	services-2024-03-01-2024-03-31-created
//	monthly-revenue-this_year-created
//	monthly-service-spa-last_12_months-created
//
// # Validity Rules
//
//   - An entry is never returned once now >= expiresAt, even if nothing
//     evicted it. Expired entries are dropped lazily on read and
//     opportunistically on write.
//   - The number of entries never exceeds the configured maximum after a
//     write returns.
//   - Clear drops everything. It runs on logout, on a rejected credential
//     and on a fresh login.
//   - Keys are prefixed with a scope derived from the credential, so a
//     restored session reuses its own entries and never sees another's.
//
// # Backends
//
// MemoryBackend evicts the least recently used entry first. RedisBackend
// evicts the entry with the nearest expiry first and lets several CLI
// invocations share one cache.
package cache

import (
	"context"
	"time"
)

// Backend is the interface for cache storage backends.
type Backend interface {
	// Get returns the value for key. Expired entries are reported absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with expiresAt = now + TTL and enforces the size bound.
	Set(ctx context.Context, key string, value []byte) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)
}

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

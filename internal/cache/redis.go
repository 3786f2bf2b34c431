package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/u4s/turnover-cli/internal/core"
)

// RedisBackend keeps entries in Redis with native expiry. A sorted set
// scored by expiry time tracks the keys it owns so the size bound can evict
// the entry closest to expiring.
type RedisBackend struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	maxEntries int
	now        Clock
}

// NewRedisBackend wraps client. Keys are namespaced under prefix.
func NewRedisBackend(client *redis.Client, prefix string, ttl time.Duration, maxEntries int, now Clock) *RedisBackend {
	if prefix == "" {
		prefix = "turnover:cache"
	}
	if ttl <= 0 {
		ttl = core.RequestCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = core.RequestCacheMaxEntries
	}
	if now == nil {
		now = time.Now
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl, maxEntries: maxEntries, now: now}
}

func (b *RedisBackend) dataKey(key string) string { return b.prefix + ":entry:" + key }
func (b *RedisBackend) indexKey() string          { return b.prefix + ":index" }

// Get returns the value for key.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := b.client.Get(ctx, b.dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		if err := b.client.ZRem(ctx, b.indexKey(), key).Err(); err != nil {
			return nil, false, fmt.Errorf("redis cache: drop index member: %w", err)
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis cache: get %s: %w", key, err)
	}
	return payload, true, nil
}

// Set stores value and evicts the nearest-expiry entries above the bound.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	now := b.now()
	expiresAt := now.Add(b.ttl)

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.dataKey(key), value, b.ttl)
	pipe.ZAdd(ctx, b.indexKey(), redis.Z{Score: float64(expiresAt.UnixMilli()), Member: key})
	pipe.ZRemRangeByScore(ctx, b.indexKey(), "-inf", strconv.FormatInt(now.UnixMilli(), 10))
	card := pipe.ZCard(ctx, b.indexKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis cache: set %s: %w", key, err)
	}

	excess := card.Val() - int64(b.maxEntries)
	if excess <= 0 {
		return nil
	}
	victims, err := b.client.ZRange(ctx, b.indexKey(), 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("redis cache: list eviction candidates: %w", err)
	}
	return b.drop(ctx, victims)
}

// Clear deletes every entry this backend indexed.
func (b *RedisBackend) Clear(ctx context.Context) error {
	members, err := b.client.ZRange(ctx, b.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis cache: list entries: %w", err)
	}
	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, b.dataKey(m))
	}
	keys = append(keys, b.indexKey())
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis cache: clear: %w", err)
	}
	return nil
}

// Len returns the number of indexed entries whose value is still present.
// Index members whose value already expired are dropped on the way.
func (b *RedisBackend) Len(ctx context.Context) (int, error) {
	members, err := b.client.ZRange(ctx, b.indexKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis cache: list entries: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	pipe := b.client.Pipeline()
	checks := make([]*redis.IntCmd, len(members))
	for i, m := range members {
		checks[i] = pipe.Exists(ctx, b.dataKey(m))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis cache: check entries: %w", err)
	}
	live := 0
	var dead []any
	for i, c := range checks {
		if c.Val() > 0 {
			live++
			continue
		}
		dead = append(dead, members[i])
	}
	if len(dead) > 0 {
		if err := b.client.ZRem(ctx, b.indexKey(), dead...).Err(); err != nil {
			return live, fmt.Errorf("redis cache: drop index members: %w", err)
		}
	}
	return live, nil
}

func (b *RedisBackend) drop(ctx context.Context, members []string) error {
	if len(members) == 0 {
		return nil
	}
	keys := make([]string, len(members))
	zmembers := make([]any, len(members))
	for i, m := range members {
		keys[i] = b.dataKey(m)
		zmembers[i] = m
	}
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, b.indexKey(), zmembers...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis cache: evict: %w", err)
	}
	return nil
}

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trialscout/trial-matcher/internal/domain"
)

const snapshotKeyPrefix = "trialscout:catalog:"

// SnapshotCache stores whole catalog snapshots keyed by cancer type
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]domain.Trial, bool, error)
	Set(ctx context.Context, key string, trials []domain.Trial) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisSnapshotCache is a SnapshotCache shared between server replicas
type RedisSnapshotCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// cachedSnapshot wraps a snapshot with its expiry metadata
type cachedSnapshot struct {
	Trials    []domain.Trial `json:"trials"`
	CachedAt  time.Time      `json:"cached_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// NewRedisSnapshotCache connects to Redis and verifies the connection
func NewRedisSnapshotCache(config domain.CacheConfig) (*RedisSnapshotCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisSnapshotCache{redis: client, defaultTTL: ttl}, nil
}

// Get returns a cached snapshot. Corrupt or expired entries count as a miss and are removed.
func (c *RedisSnapshotCache) Get(ctx context.Context, key string) ([]domain.Trial, bool, error) {
	val, err := c.redis.Get(ctx, snapshotKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get catalog snapshot: %w", err)
	}

	var cached cachedSnapshot
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, snapshotKeyPrefix+key)
		return nil, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, snapshotKeyPrefix+key)
		return nil, false, nil
	}
	return cached.Trials, true, nil
}

// Set stores a snapshot for the default TTL
func (c *RedisSnapshotCache) Set(ctx context.Context, key string, trials []domain.Trial) error {
	now := time.Now()
	data, err := json.Marshal(cachedSnapshot{
		Trials:    trials,
		CachedAt:  now,
		ExpiresAt: now.Add(c.defaultTTL),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal catalog snapshot: %w", err)
	}
	return c.redis.Set(ctx, snapshotKeyPrefix+key, data, c.defaultTTL).Err()
}

// Delete drops the given snapshots
func (c *RedisSnapshotCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = snapshotKeyPrefix + k
	}
	return c.redis.Del(ctx, full...).Err()
}

// Close closes the Redis client
func (c *RedisSnapshotCache) Close() error {
	return c.redis.Close()
}

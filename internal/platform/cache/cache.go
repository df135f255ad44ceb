// Package cache keeps JSON-encoded listing pages in Redis. A Cache built
// without a client is disabled and always calls the loader.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/labflow/labflow/internal/platform/telemetry"
)

const rebuildLockTTL = 10 * time.Second

type Cache struct {
	client  *redis.Client
	locker  *redislock.Client
	ttl     time.Duration
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func New(client *redis.Client, ttl time.Duration, logger zerolog.Logger, metrics *telemetry.Metrics) *Cache {
	c := &Cache{client: client, ttl: ttl, logger: logger, metrics: metrics}
	if client != nil {
		c.locker = redislock.New(client)
	}
	return c
}

func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Key joins parts with ':' after formatting each with %v.
func Key(parts ...any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprintf("%v", p)
	}
	return strings.Join(s, ":")
}

// Fetch returns the cached value at key, or runs load and caches its result.
// refresh skips the read. Only one instance rebuilds a cold key at a time;
// the others load without writing. Redis failures degrade to calling load.
func Fetch[T any](ctx context.Context, c *Cache, key string, refresh bool, load func(context.Context) (T, error)) (T, error) {
	if !c.Enabled() {
		return load(ctx)
	}

	if !refresh {
		var cached T
		hit, err := c.get(ctx, key, &cached)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		c.metrics.CacheLookup(hit)
		if hit {
			return cached, nil
		}
	}

	lock, err := c.locker.Obtain(ctx, "lock:"+key, rebuildLockTTL, nil)
	if err != nil {
		if !errors.Is(err, redislock.ErrNotObtained) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache lock failed")
		}
		return load(ctx)
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if err := c.set(ctx, key, v); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return v, nil
}

// InvalidatePrefix deletes every key starting with prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	if !c.Enabled() {
		return nil
	}
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s*: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

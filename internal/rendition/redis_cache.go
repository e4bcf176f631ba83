package rendition

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"transformd/internal/logging"
)

const defaultRedisPrefix = "transformd:capabilities:"

// RedisCache shares capability pairs between replicas. Redis failures are
// logged and treated as cache misses.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type RedisCacheOption func(*RedisCache)

func WithRedisPrefix(p string) RedisCacheOption {
	return func(c *RedisCache) {
		if p != "" {
			c.prefix = p
		}
	}
}

func WithRedisTTL(ttl time.Duration) RedisCacheOption {
	return func(c *RedisCache) { c.ttl = ttl }
}

func NewRedisCache(rdb redis.UniversalClient, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{rdb: rdb, prefix: defaultRedisPrefix}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *RedisCache) key(mimetype string) string { return c.prefix + mimetype }

func (c *RedisCache) Get(ctx context.Context, sourceMimetype string) ([]Capability, bool) {
	raw, err := c.rdb.Get(ctx, c.key(sourceMimetype)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logging.L().Warn("capability cache: redis get failed", "mimetype", sourceMimetype, "err", err)
		return nil, false
	}
	var caps []Capability
	if err := json.Unmarshal(raw, &caps); err != nil {
		logging.L().Warn("capability cache: corrupt entry", "mimetype", sourceMimetype, "err", err)
		return nil, false
	}
	return caps, true
}

func (c *RedisCache) Put(ctx context.Context, sourceMimetype string, caps []Capability) {
	if caps == nil {
		caps = []Capability{}
	}
	raw, err := json.Marshal(caps)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(sourceMimetype), raw, c.ttl).Err(); err != nil {
		logging.L().Warn("capability cache: redis set failed", "mimetype", sourceMimetype, "err", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logging.L().Warn("capability cache: redis scan failed", "err", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logging.L().Warn("capability cache: redis invalidate failed", "err", err)
	}
}

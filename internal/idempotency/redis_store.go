package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "idem:"

// RedisGuard backs the guard with Redis so replay protection survives
// restarts and is shared across instances.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) Check(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := g.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (g *RedisGuard) Store(ctx context.Context, key string, value []byte) error {
	return g.rdb.Set(ctx, redisKeyPrefix+key, value, g.ttl).Err()
}

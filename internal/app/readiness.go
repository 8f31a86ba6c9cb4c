package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPingResult is the minimal return type of a Redis client's Ping.
type RedisPingResult interface{ Err() error }

// RedisClient is the minimal interface for a Redis client needed for readiness.
type RedisClient interface {
	Ping(ctx context.Context) RedisPingResult
}

type redisPinger struct{ rdb redis.UniversalClient }

func (p redisPinger) Ping(ctx context.Context) RedisPingResult { return p.rdb.Ping(ctx) }

// PingRedis adapts a go-redis client to RedisClient.
func PingRedis(rdb redis.UniversalClient) RedisClient {
	if rdb == nil {
		return nil
	}
	return redisPinger{rdb: rdb}
}

// BuildRedisCheck returns the readiness check of the optional cache. It
// returns nil when Redis is not configured so the check is skipped.
func BuildRedisCheck(rdb RedisClient) func(ctx context.Context) error {
	if rdb == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		return nil
	}
}

// Package cache stores video metadata responses in Redis so repeated lookups
// do not spend upstream quota.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/recipe-extractor/internal/domain"
)

const keyPrefix = "video:"

// VideoCache implements domain.VideoCache on a Redis client.
type VideoCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

var _ domain.VideoCache = (*VideoCache)(nil)

// NewVideoCache returns nil when rdb is nil; a nil *VideoCache always misses.
func NewVideoCache(rdb redis.UniversalClient, ttl time.Duration) *VideoCache {
	if rdb == nil {
		return nil
	}
	return &VideoCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached video, or ok=false on a miss.
func (c *VideoCache) Get(ctx domain.Context, id string) (domain.Video, bool, error) {
	if c == nil {
		return domain.Video{}, false, nil
	}
	raw, err := c.rdb.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Video{}, false, nil
	}
	if err != nil {
		return domain.Video{}, false, fmt.Errorf("op=cache.Get: %w", err)
	}
	var v domain.Video
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("dropping corrupt cache entry", slog.String("video_id", id), slog.Any("error", err))
		_ = c.rdb.Del(ctx, keyPrefix+id).Err()
		return domain.Video{}, false, nil
	}
	return v, true, nil
}

// Set stores v under its id for the configured TTL.
func (c *VideoCache) Set(ctx domain.Context, v domain.Video) error {
	if c == nil {
		return nil
	}
	if v.ID == "" {
		return fmt.Errorf("op=cache.Set: %w: video id required", domain.ErrInvalidArgument)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("op=cache.Set: %w", err)
	}
	if err := c.rdb.Set(ctx, keyPrefix+v.ID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("op=cache.Set: %w", err)
	}
	return nil
}

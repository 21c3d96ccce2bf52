package services

import (
  "context"
  "errors"
  "time"

  "github.com/redis/go-redis/v9"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
)

// CacheService is a thin get/set/del wrapper over redis. A nil redis client
// makes every operation a no-op miss, so callers never branch on cache
// availability.
type CacheService interface {
  Get(ctx context.Context, key string) (string, bool)
  Set(ctx context.Context, key, value string, ttl time.Duration)
  Del(ctx context.Context, keys ...string)
}

type cacheService struct {
  log    *logger.Logger
  client *redis.Client
}

func NewCacheService(baseLog *logger.Logger, client *redis.Client) CacheService {
  return &cacheService{log: baseLog.With("service", "CacheService"), client: client}
}

func (c *cacheService) Get(ctx context.Context, key string) (string, bool) {
  if c.client == nil {
    return "", false
  }
  val, err := c.client.Get(ctx, key).Result()
  if err != nil {
    if !errors.Is(err, redis.Nil) {
      c.log.Warn("cache get failed", "key", key, "error", err)
    }
    return "", false
  }
  return val, true
}

func (c *cacheService) Set(ctx context.Context, key, value string, ttl time.Duration) {
  if c.client == nil {
    return
  }
  if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
    c.log.Warn("cache set failed", "key", key, "error", err)
  }
}

func (c *cacheService) Del(ctx context.Context, keys ...string) {
  if c.client == nil || len(keys) == 0 {
    return
  }
  if err := c.client.Del(ctx, keys...).Err(); err != nil {
    c.log.Warn("cache del failed", "error", err)
  }
}

package db

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/auditlens/auditlens-backend/internal/platform/logger"
	"github.com/auditlens/auditlens-backend/internal/utils"
)

// NewRedisClient returns nil when REDIS_ADDR is unset; callers treat a nil
// client as cache-disabled.
func NewRedisClient(log *logger.Logger) *redis.Client {
	log = log.With("service", "RedisClient")
	addr := utils.GetEnv("REDIS_ADDR", "", log)
	if addr == "" {
		log.Info("REDIS_ADDR not set, cache disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: utils.GetEnv("REDIS_PASSWORD", "", nil),
		DB:       utils.GetEnvAsInt("REDIS_DB", 0, log),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis ping failed, cache disabled", "addr", addr, "error", err)
		_ = client.Close()
		return nil
	}
	log.Info("Connected to redis", "addr", addr)
	return client
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/carepulse/analytics-platform/pkg/common/config"
	"github.com/carepulse/analytics-platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// CountsCacheKey holds the cached per-table row totals; the ingestion
// orchestrator deletes it after every run.
const CountsCacheKey = "carepulse:meta:counts"

// NewRedis returns a client for the counts cache, or nil when the cache is
// disabled. A nil client is a valid "no cache" value for its consumers.
func NewRedis(cfg *config.Config) *redis.Client {
	if !cfg.RedisEnabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Log.WithError(err).Warn("Failed to connect to Redis, counts cache disabled")
		_ = client.Close()
		return nil
	}

	logger.Log.Info("Connected to Redis")
	return client
}

func CloseRedis(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

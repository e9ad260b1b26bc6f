package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dataloom-io/loom-engine/pkg/config"
	"github.com/dataloom-io/loom-engine/pkg/retry"
)

// NewRedisClient creates a Redis client with the given configuration.
// Returns nil if Redis is not configured (host is empty); the orchestrator
// then runs jobs without cross-process idempotency locks.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

package variables

import (
	"context"
	"errors"
	"fmt"

	"dounotify/internal/config"

	"github.com/redis/go-redis/v9"
)

// redisGetter is the part of *redis.Client used for lookups.
type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// RedisStore resolves variables from Redis string keys.
type RedisStore struct {
	client redisGetter
	prefix string
}

// NewRedisStore connects to Redis and verifies connectivity.
// Params: context for the ping and Redis settings.
// Returns: Redis-backed store or connection error.
func NewRedisStore(ctx context.Context, cfg config.RedisVariables) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

// Lookup reads `{prefix}{name}`.
func (s *RedisStore) Lookup(ctx context.Context, name string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return "", notFound(name)
	}
	if err != nil {
		return "", fmt.Errorf("redis get variable %q: %w", name, err)
	}
	return value, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

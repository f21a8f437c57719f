package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/chat-relay/internal/config"
	"github.com/weiawesome/chat-relay/internal/domain"
)

type RedisHistoryCache struct {
	client *redis.Client
	prefix string
}

func NewRedisHistoryCache(cfg config.RedisConfig) (*RedisHistoryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisHistoryCacheWithClient(client, cfg.CachePrefix), nil
}

func NewRedisHistoryCacheWithClient(client *redis.Client, prefix string) *RedisHistoryCache {
	if prefix == "" {
		prefix = "chat:history"
	}
	return &RedisHistoryCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisHistoryCache) versionKey(room string) string {
	return fmt.Sprintf("%s:%s:ver", c.prefix, room)
}

func (c *RedisHistoryCache) pageKey(room string, version int64, limit int) string {
	return fmt.Sprintf("%s:%s:v%d:%d", c.prefix, room, version, limit)
}

func (c *RedisHistoryCache) version(ctx context.Context, room string) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(room)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get version from redis: %w", err)
	}
	return v, nil
}

func (c *RedisHistoryCache) Get(ctx context.Context, room string, limit int) ([]domain.Message, int64, error) {
	version, err := c.version(ctx, room)
	if err != nil {
		return nil, 0, err
	}

	data, err := c.client.Get(ctx, c.pageKey(room, version, limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, version, ErrCacheMiss
		}
		return nil, version, fmt.Errorf("failed to get from redis: %w", err)
	}

	var messages []domain.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, version, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return messages, version, nil
}

func (c *RedisHistoryCache) Set(ctx context.Context, room string, version int64, limit int, messages []domain.Message, ttl time.Duration) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, c.pageKey(room, version, limit), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Invalidate(ctx context.Context, room string) error {
	if err := c.client.Incr(ctx, c.versionKey(room)).Err(); err != nil {
		return fmt.Errorf("failed to bump version in redis: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Close() error {
	return c.client.Close()
}

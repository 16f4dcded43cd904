package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

// RedisCache shares cached results between gateway instances
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a cache on an existing client
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get loads and decodes the entry for fingerprint
func (c *RedisCache) Get(ctx context.Context, fingerprint string) (*models.GenerationResult, bool, error) {
	data, err := c.client.Get(ctx, fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var result models.GenerationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &result, true, nil
}

// Put stores result as JSON with an expiry of ttl
func (c *RedisCache) Put(ctx context.Context, fingerprint string, result *models.GenerationResult, ttl time.Duration) error {
	if result == nil || ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, fingerprint, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

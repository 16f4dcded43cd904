package cache

import (
	"context"
	"time"

	"github.com/fahdr/ecomm-sub005/internal/models"
	"github.com/fahdr/ecomm-sub005/internal/storage"
)

// MemoryCache is a bounded in-process cache for single-instance deployments
type MemoryCache struct {
	lru *storage.LRUCache
}

// NewMemoryCache creates a cache holding at most size entries
func NewMemoryCache(size int) *MemoryCache {
	return &MemoryCache{lru: storage.NewLRUCache(size, 0)}
}

// Get returns a copy of the live entry for fingerprint
func (c *MemoryCache) Get(ctx context.Context, fingerprint string) (*models.GenerationResult, bool, error) {
	v, ok := c.lru.Get(fingerprint)
	if !ok {
		return nil, false, nil
	}
	result := v.(models.GenerationResult)
	return &result, true, nil
}

// Put stores a copy of result for ttl
func (c *MemoryCache) Put(ctx context.Context, fingerprint string, result *models.GenerationResult, ttl time.Duration) error {
	if result == nil || ttl <= 0 {
		return nil
	}
	c.lru.SetWithTTL(fingerprint, *result, ttl)
	return nil
}

// Len returns the number of stored entries
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

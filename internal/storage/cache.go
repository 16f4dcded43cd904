package storage

import (
	"container/list"
	"sync"
	"time"
)

type lruEntry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// LRUCache is a thread-safe LRU cache with per-entry expiry.
// It backs the override read-through cache and the in-process response cache.
type LRUCache struct {
	mu         sync.Mutex
	capacity   int
	defaultTTL time.Duration
	items      map[string]*list.Element
	order      *list.List // front is most recently used
	now        func() time.Time
}

// NewLRUCache creates a cache holding at most capacity entries.
// Entries stored with Set live for defaultTTL.
func NewLRUCache(capacity int, defaultTTL time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRUCache{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		items:      make(map[string]*list.Element, capacity),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the live value for key
func (c *LRUCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*lruEntry)
	if !c.now().Before(entry.expiresAt) {
		c.remove(elem)
		return nil, false
	}

	c.order.MoveToFront(elem)
	return entry.value, true
}

// Set stores value under key with the default TTL
func (c *LRUCache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key for ttl, evicting the least recently
// used entry when the cache is full
func (c *LRUCache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})

	if c.order.Len() > c.capacity {
		c.remove(c.order.Back())
	}
}

// Delete removes key
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
}

// Clear removes every entry
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

// Len returns the number of stored entries, expired ones included
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CleanupExpired drops expired entries and returns how many were removed
func (c *LRUCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*lruEntry).expiresAt) {
			c.remove(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

func (c *LRUCache) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*lruEntry).key)
}

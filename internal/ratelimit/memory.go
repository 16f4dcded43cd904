package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	window int64
	count  int64
}

// MemoryLimiter is the single-instance fixed-window limiter
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
	now      func() time.Time
}

// NewMemoryLimiter constructs a MemoryLimiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
		now:      time.Now,
	}
}

// Admit records an attempt against provider's current window
func (l *MemoryLimiter) Admit(ctx context.Context, provider string, rpm int) (bool, error) {
	return l.AllowWithDetails(ctx, provider, rpm).Allowed, nil
}

// AllowWithDetails records an attempt and returns the full decision
func (l *MemoryLimiter) AllowWithDetails(_ context.Context, provider string, limit int) Decision {
	if limit <= 0 {
		return unlimited
	}

	now := l.now()
	window := windowStart(now).Unix()

	l.mu.Lock()
	entry := l.counters[provider]
	if entry == nil {
		entry = &memoryEntry{window: window}
		l.counters[provider] = entry
	}
	if entry.window != window {
		entry.window = window
		entry.count = 0
	}
	entry.count++
	count := entry.count
	l.mu.Unlock()

	return decide(count, limit, now)
}

// Usage returns the attempts recorded in the current window
func (l *MemoryLimiter) Usage(_ context.Context, provider string) (int64, error) {
	window := windowStart(l.now()).Unix()

	l.mu.Lock()
	defer l.mu.Unlock()
	if entry := l.counters[provider]; entry != nil && entry.window == window {
		return entry.count, nil
	}
	return 0, nil
}

// Reset clears provider's counter
func (l *MemoryLimiter) Reset(_ context.Context, provider string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counters, provider)
	return nil
}

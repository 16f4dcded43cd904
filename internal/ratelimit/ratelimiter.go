package ratelimit

import (
	"context"
	"time"
)

// Window is the length of one rate-limit bucket. Buckets are aligned to
// wall-clock minutes so every gateway instance agrees on the boundaries.
const Window = time.Minute

// Decision describes the outcome of one admission check
type Decision struct {
	Allowed   bool
	Count     int64     // admissions recorded in the current window, including this one
	Remaining int       // -1 when unlimited
	ResetAt   time.Time // zero when unlimited
}

// Limiter admits or refuses calls to a provider against its per-minute ceiling
type Limiter interface {
	// Admit records an attempt and reports whether it fits under rpm.
	// rpm <= 0 means unlimited.
	Admit(ctx context.Context, provider string, rpm int) (bool, error)

	// Usage returns the number of attempts recorded in the current window
	Usage(ctx context.Context, provider string) (int64, error)

	// Reset clears the current window's counter for provider
	Reset(ctx context.Context, provider string) error
}

// windowStart returns the start of the window containing now
func windowStart(now time.Time) time.Time {
	return now.Truncate(Window)
}

// decide turns a post-increment count into a Decision
func decide(count int64, limit int, now time.Time) Decision {
	reset := windowStart(now).Add(Window)
	if count > int64(limit) {
		return Decision{Allowed: false, Count: count, Remaining: 0, ResetAt: reset}
	}
	return Decision{Allowed: true, Count: count, Remaining: limit - int(count), ResetAt: reset}
}

// unlimited is the decision returned when no ceiling is configured
var unlimited = Decision{Allowed: true, Remaining: -1}

// NoopLimiter admits everything
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (n *NoopLimiter) Admit(ctx context.Context, provider string, rpm int) (bool, error) {
	return true, nil
}

func (n *NoopLimiter) Usage(ctx context.Context, provider string) (int64, error) {
	return 0, nil
}

func (n *NoopLimiter) Reset(ctx context.Context, provider string) error {
	return nil
}

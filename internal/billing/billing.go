// Package billing keeps month-to-date spend per customer, fed from the usage ledger.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

// spendTTL keeps a month's counter around for two months
const spendTTL = 60 * 24 * time.Hour

// Service tracks customer spend
type Service interface {
	// AddSpend adds costUSD to the user's total for the month containing at
	AddSpend(ctx context.Context, userID string, costUSD float64, at time.Time) error

	// Spend returns the user's total for a calendar month
	Spend(ctx context.Context, userID string, year int, month time.Month) (float64, error)
}

// MonthlySpend returns the user's spend for the current UTC month
func MonthlySpend(ctx context.Context, s Service, userID string) (float64, error) {
	now := time.Now().UTC()
	return s.Spend(ctx, userID, now.Year(), now.Month())
}

// Tracker adapts a Service into a ledger consumer. Cached and free calls
// add nothing; entries are summed per user and month before hitting the backend.
type Tracker struct {
	service Service
}

// NewTracker creates a ledger consumer over service
func NewTracker(service Service) *Tracker {
	return &Tracker{service: service}
}

type spendKey struct {
	userID string
	year   int
	month  time.Month
}

// ConsumeUsage adds the cost of persisted ledger entries
func (t *Tracker) ConsumeUsage(ctx context.Context, entries []*models.UsageLogEntry) error {
	totals := make(map[spendKey]float64)
	for _, e := range entries {
		if e.CostUSD <= 0 {
			continue
		}
		at := e.CreatedAt.UTC()
		if e.CreatedAt.IsZero() {
			at = time.Now().UTC()
		}
		totals[spendKey{e.UserID, at.Year(), at.Month()}] += e.CostUSD
	}

	var errs []error
	for k, cost := range totals {
		at := time.Date(k.year, k.month, 1, 0, 0, 0, 0, time.UTC)
		if err := t.service.AddSpend(ctx, k.userID, cost, at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Service returns the backing spend store
func (t *Tracker) Service() Service {
	return t.service
}

// addSpendScript increments a float counter and refreshes its expiry
var addSpendScript = redis.NewScript(`
local total = redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return total
`)

// RedisBillingService keeps spend counters in Redis, shared by all instances
type RedisBillingService struct {
	redis *redis.Client
}

// NewRedisBillingService creates a spend store on an existing client
func NewRedisBillingService(client *redis.Client) *RedisBillingService {
	return &RedisBillingService{redis: client}
}

// AddSpend adds cost to the month's running total
func (s *RedisBillingService) AddSpend(ctx context.Context, userID string, costUSD float64, at time.Time) error {
	at = at.UTC()
	key := monthlyKey(userID, at.Year(), at.Month())

	amount := strconv.FormatFloat(costUSD, 'f', -1, 64)
	if err := addSpendScript.Run(ctx, s.redis, []string{key}, amount, int(spendTTL.Seconds())).Err(); err != nil {
		return fmt.Errorf("failed to add spend: %w", err)
	}
	return nil
}

// Spend returns the total for a specific month
func (s *RedisBillingService) Spend(ctx context.Context, userID string, year int, month time.Month) (float64, error) {
	val, err := s.redis.Get(ctx, monthlyKey(userID, year, month)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get spend: %w", err)
	}
	return val, nil
}

// ResetSpend clears a month's total (admin use)
func (s *RedisBillingService) ResetSpend(ctx context.Context, userID string, year int, month time.Month) error {
	return s.redis.Del(ctx, monthlyKey(userID, year, month)).Err()
}

// monthlyKey generates the Redis key for monthly spend
func monthlyKey(userID string, year int, month time.Month) string {
	return fmt.Sprintf("cost:%s:%d:%02d", userID, year, int(month))
}

// MemoryBillingService keeps spend counters in process memory
type MemoryBillingService struct {
	mu     sync.Mutex
	totals map[string]float64
}

func NewMemoryBillingService() *MemoryBillingService {
	return &MemoryBillingService{totals: make(map[string]float64)}
}

func (s *MemoryBillingService) AddSpend(ctx context.Context, userID string, costUSD float64, at time.Time) error {
	at = at.UTC()
	s.mu.Lock()
	s.totals[monthlyKey(userID, at.Year(), at.Month())] += costUSD
	s.mu.Unlock()
	return nil
}

func (s *MemoryBillingService) Spend(ctx context.Context, userID string, year int, month time.Month) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[monthlyKey(userID, year, month)], nil
}

// Package usage turns ledger aggregations into the reports served to the
// cost dashboard.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

const (
	DefaultDays  = 30
	MaxDays      = 365
	DefaultLimit = 10
	MaxLimit     = 1000
)

// Store is the read side of the usage ledger
type Store interface {
	Summary(ctx context.Context, since time.Time) (*models.UsageTotals, error)
	ByProvider(ctx context.Context, since time.Time) ([]*models.UsageGroup, error)
	ByService(ctx context.Context, since time.Time) ([]*models.UsageGroup, error)
	ByCustomer(ctx context.Context, since time.Time, limit int) ([]*models.UsageGroup, error)
}

// Stats are totals plus the rates derived from them
type Stats struct {
	models.UsageTotals
	CacheHitRate float64 `json:"cache_hit_rate"` // percent
	ErrorRate    float64 `json:"error_rate"`     // percent
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// Summary covers the whole window
type Summary struct {
	Days  int       `json:"days"`
	Since time.Time `json:"since"`
	Stats
}

// GroupStats is one row of a breakdown
type GroupStats struct {
	Key string `json:"key"`
	Stats
}

// Breakdown groups the window by one dimension, largest spend first
type Breakdown struct {
	Days    int           `json:"days"`
	Since   time.Time     `json:"since"`
	GroupBy string        `json:"group_by"`
	Groups  []*GroupStats `json:"groups"`
}

// Reporter builds usage reports over trailing windows of whole days
type Reporter struct {
	store Store
	now   func() time.Time
}

func NewReporter(store Store) *Reporter {
	return &Reporter{store: store, now: time.Now}
}

// ClampDays applies the default to non-positive values and caps at MaxDays
func ClampDays(days int) int {
	if days <= 0 {
		return DefaultDays
	}
	if days > MaxDays {
		return MaxDays
	}
	return days
}

// ClampLimit applies the default to non-positive values and caps at MaxLimit
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func (r *Reporter) since(days int) time.Time {
	return r.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
}

// Summary reports totals over the last days
func (r *Reporter) Summary(ctx context.Context, days int) (*Summary, error) {
	days = ClampDays(days)
	since := r.since(days)

	totals, err := r.store.Summary(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage summary: %w", err)
	}
	return &Summary{Days: days, Since: since, Stats: NewStats(*totals)}, nil
}

// ByProvider reports spend per provider
func (r *Reporter) ByProvider(ctx context.Context, days int) (*Breakdown, error) {
	days = ClampDays(days)
	since := r.since(days)

	groups, err := r.store.ByProvider(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage by provider: %w", err)
	}
	return newBreakdown(days, since, "provider", groups), nil
}

// ByService reports spend per calling service
func (r *Reporter) ByService(ctx context.Context, days int) (*Breakdown, error) {
	days = ClampDays(days)
	since := r.since(days)

	groups, err := r.store.ByService(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage by service: %w", err)
	}
	return newBreakdown(days, since, "service", groups), nil
}

// ByCustomer reports the top customers by spend
func (r *Reporter) ByCustomer(ctx context.Context, days, limit int) (*Breakdown, error) {
	days = ClampDays(days)
	limit = ClampLimit(limit)
	since := r.since(days)

	groups, err := r.store.ByCustomer(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage by customer: %w", err)
	}
	return newBreakdown(days, since, "customer", groups), nil
}

func newBreakdown(days int, since time.Time, groupBy string, groups []*models.UsageGroup) *Breakdown {
	b := &Breakdown{
		Days:    days,
		Since:   since,
		GroupBy: groupBy,
		Groups:  make([]*GroupStats, 0, len(groups)),
	}
	for _, g := range groups {
		b.Groups = append(b.Groups, &GroupStats{Key: g.Key, Stats: NewStats(g.UsageTotals)})
	}
	return b
}

// NewStats derives the rates; every rate is zero when there were no requests
func NewStats(t models.UsageTotals) Stats {
	s := Stats{UsageTotals: t}
	if t.TotalRequests == 0 {
		return s
	}
	n := float64(t.TotalRequests)
	s.CacheHitRate = percent(float64(t.CachedRequests), n)
	s.ErrorRate = percent(float64(t.ErrorRequests), n)
	s.AvgLatencyMS = float64(t.TotalLatencyMS) / n
	return s
}

func percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageLogEntry is one immutable ledger row, written once per dispatch
type UsageLogEntry struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	ServiceName  string    `db:"service_name" json:"service_name"`
	TaskType     string    `db:"task_type" json:"task_type"`
	ProviderName string    `db:"provider_name" json:"provider_name"`
	Model        string    `db:"model" json:"model"`
	InputTokens  int       `db:"input_tokens" json:"input_tokens"`
	OutputTokens int       `db:"output_tokens" json:"output_tokens"`
	CostUSD      float64   `db:"cost_usd" json:"cost_usd"`
	Cached       bool      `db:"cached" json:"cached"`
	LatencyMS    int64     `db:"latency_ms" json:"latency_ms"`
	Error        *string   `db:"error" json:"error,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Failed reports whether the dispatch ended in an error
func (e *UsageLogEntry) Failed() bool {
	return e.Error != nil
}

// UsageTotals are the aggregate figures shared by every ledger report
type UsageTotals struct {
	TotalRequests     int64   `db:"total_requests" json:"total_requests"`
	TotalCostUSD      float64 `db:"total_cost_usd" json:"total_cost_usd"`
	TotalInputTokens  int64   `db:"total_input_tokens" json:"total_input_tokens"`
	TotalOutputTokens int64   `db:"total_output_tokens" json:"total_output_tokens"`
	CachedRequests    int64   `db:"cached_requests" json:"cached_requests"`
	ErrorRequests     int64   `db:"error_requests" json:"error_requests"`
	TotalLatencyMS    int64   `db:"total_latency_ms" json:"-"`
}

// UsageGroup is a UsageTotals row for one grouping key (provider, service or customer)
type UsageGroup struct {
	Key string `db:"group_key" json:"key"`
	UsageTotals
}

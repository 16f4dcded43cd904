package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

const insertUsageQuery = `
	INSERT INTO usage_logs (
		id, user_id, service_name, task_type, provider_name, model,
		input_tokens, output_tokens, cost_usd, cached, latency_ms, error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// usageTotalsColumns is the aggregate select list shared by every report
const usageTotalsColumns = `
	COUNT(*) AS total_requests,
	COALESCE(SUM(cost_usd), 0) AS total_cost_usd,
	COALESCE(SUM(input_tokens), 0) AS total_input_tokens,
	COALESCE(SUM(output_tokens), 0) AS total_output_tokens,
	COALESCE(SUM(CASE WHEN cached THEN 1 ELSE 0 END), 0) AS cached_requests,
	COALESCE(SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END), 0) AS error_requests,
	COALESCE(SUM(latency_ms), 0) AS total_latency_ms
`

// UsageRepository handles the append-only usage ledger
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// prepareEntry fills in the id and timestamp of a new entry
func prepareEntry(entry *models.UsageLogEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
}

func insertUsage(ctx context.Context, exec sqlx.ExecerContext, query string, entry *models.UsageLogEntry) error {
	prepareEntry(entry)
	_, err := exec.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.ServiceName, entry.TaskType, entry.ProviderName, entry.Model,
		entry.InputTokens, entry.OutputTokens, entry.CostUSD, entry.Cached, entry.LatencyMS,
		entry.Error, entry.CreatedAt,
	)
	return err
}

// Create appends one entry
func (r *UsageRepository) Create(ctx context.Context, entry *models.UsageLogEntry) error {
	if err := insertUsage(ctx, r.db.conn, r.db.rebind(insertUsageQuery), entry); err != nil {
		return fmt.Errorf("failed to create usage log: %w", err)
	}
	return nil
}

// CreateBatch appends entries in a single transaction: all or nothing
func (r *UsageRepository) CreateBatch(ctx context.Context, entries []*models.UsageLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(insertUsageQuery)
	for _, entry := range entries {
		if err := insertUsage(ctx, tx, query, entry); err != nil {
			return fmt.Errorf("failed to insert usage log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByID returns one ledger entry
func (r *UsageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.UsageLogEntry, error) {
	query := r.db.rebind(`
		SELECT id, user_id, service_name, task_type, provider_name, model, input_tokens,
		       output_tokens, cost_usd, cached, latency_ms, error, created_at
		FROM usage_logs
		WHERE id = ?
	`)

	var entry models.UsageLogEntry
	if err := r.db.conn.GetContext(ctx, &entry, query, id); err != nil {
		return nil, fmt.Errorf("failed to get usage log: %w", err)
	}
	return &entry, nil
}

// Summary aggregates every entry created at or after since
func (r *UsageRepository) Summary(ctx context.Context, since time.Time) (*models.UsageTotals, error) {
	query := r.db.rebind(`SELECT ` + usageTotalsColumns + ` FROM usage_logs WHERE created_at >= ?`)

	var totals models.UsageTotals
	if err := r.db.conn.GetContext(ctx, &totals, query, since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return &totals, nil
}

// ByProvider aggregates per provider, most expensive first
func (r *UsageRepository) ByProvider(ctx context.Context, since time.Time) ([]*models.UsageGroup, error) {
	return r.groupBy(ctx, "provider_name", since, 0)
}

// ByService aggregates per calling service, most expensive first
func (r *UsageRepository) ByService(ctx context.Context, since time.Time) ([]*models.UsageGroup, error) {
	return r.groupBy(ctx, "service_name", since, 0)
}

// ByCustomer returns the limit customers with the highest spend
func (r *UsageRepository) ByCustomer(ctx context.Context, since time.Time, limit int) ([]*models.UsageGroup, error) {
	return r.groupBy(ctx, "user_id", since, limit)
}

// groupBy aggregates by column, a fixed identifier from this file.
// limit <= 0 returns every group.
func (r *UsageRepository) groupBy(ctx context.Context, column string, since time.Time, limit int) ([]*models.UsageGroup, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s AS group_key, %[2]s
		FROM usage_logs
		WHERE created_at >= ?
		GROUP BY %[1]s
		ORDER BY total_cost_usd DESC, group_key
	`, column, usageTotalsColumns)

	args := []interface{}{since.UTC()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var groups []*models.UsageGroup
	if err := r.db.conn.SelectContext(ctx, &groups, r.db.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate usage by %s: %w", column, err)
	}
	return groups, nil
}

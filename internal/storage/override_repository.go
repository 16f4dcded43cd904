package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

// OverrideRepository handles customer routing overrides. Lookups read
// through the DB's override cache, which also remembers users without one.
type OverrideRepository struct {
	db *DB
}

// NewOverrideRepository creates a new override repository
func NewOverrideRepository(db *DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

func overrideCacheKey(userID string) string {
	return "override:" + userID
}

// Lookup returns the user's override, or nil when there is none.
// It is the per-dispatch read and goes through the cache.
func (r *OverrideRepository) Lookup(ctx context.Context, userID string) (*models.CustomerOverride, error) {
	key := overrideCacheKey(userID)
	if cached, ok := r.db.overrideCache.Get(key); ok {
		if cached == nil {
			return nil, nil
		}
		o := cached.(models.CustomerOverride)
		return &o, nil
	}

	override, err := r.Get(ctx, userID)
	if errors.Is(err, ErrOverrideNotFound) {
		r.db.overrideCache.Set(key, nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.db.overrideCache.Set(key, *override)
	return override, nil
}

// Get reads the user's override directly from the database
func (r *OverrideRepository) Get(ctx context.Context, userID string) (*models.CustomerOverride, error) {
	query := r.db.rebind(`
		SELECT user_id, provider_name, model_name, created_at, updated_at
		FROM customer_overrides
		WHERE user_id = ?
	`)

	var override models.CustomerOverride
	if err := r.db.conn.GetContext(ctx, &override, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOverrideNotFound
		}
		return nil, fmt.Errorf("failed to get customer override: %w", err)
	}
	return &override, nil
}

// List returns every override ordered by user
func (r *OverrideRepository) List(ctx context.Context) ([]*models.CustomerOverride, error) {
	query := `
		SELECT user_id, provider_name, model_name, created_at, updated_at
		FROM customer_overrides
		ORDER BY user_id
	`

	var overrides []*models.CustomerOverride
	if err := r.db.conn.SelectContext(ctx, &overrides, query); err != nil {
		return nil, fmt.Errorf("failed to list customer overrides: %w", err)
	}
	return overrides, nil
}

// Set creates or replaces the user's override
func (r *OverrideRepository) Set(ctx context.Context, override *models.CustomerOverride) error {
	now := time.Now().UTC()
	override.CreatedAt = now
	override.UpdatedAt = now

	query := r.db.rebind(`
		INSERT INTO customer_overrides (user_id, provider_name, model_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			provider_name = excluded.provider_name,
			model_name = excluded.model_name,
			updated_at = excluded.updated_at
	`)

	_, err := r.db.conn.ExecContext(ctx, query,
		override.UserID, override.ProviderName, override.ModelName, override.CreatedAt, override.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set customer override: %w", err)
	}

	r.Invalidate(override.UserID)
	return nil
}

// Delete removes the user's override
func (r *OverrideRepository) Delete(ctx context.Context, userID string) error {
	query := r.db.rebind(`DELETE FROM customer_overrides WHERE user_id = ?`)

	result, err := r.db.conn.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete customer override: %w", err)
	}

	r.Invalidate(userID)
	return expectOneRow(result, ErrOverrideNotFound)
}

// Invalidate drops the cached lookup for userID
func (r *OverrideRepository) Invalidate(userID string) {
	r.db.overrideCache.Delete(overrideCacheKey(userID))
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

const providerColumns = `name, display_name, models, priority, rate_limit_rpm, enabled,
		       encrypted_credential, config, pricing, created_at, updated_at`

// ProviderRepository handles provider database operations
type ProviderRepository struct {
	db *DB
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(db *DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// GetByName retrieves a provider by name
func (r *ProviderRepository) GetByName(ctx context.Context, name string) (*models.Provider, error) {
	query := r.db.rebind(`SELECT ` + providerColumns + ` FROM providers WHERE name = ?`)

	var provider models.Provider
	if err := r.db.conn.GetContext(ctx, &provider, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &provider, nil
}

// List returns all providers, enabled or not, in dispatch order
func (r *ProviderRepository) List(ctx context.Context) ([]*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers ORDER BY priority, name`

	var providers []*models.Provider
	if err := r.db.conn.SelectContext(ctx, &providers, query); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, nil
}

// Create inserts a new provider; ErrProviderExists when the name is taken
func (r *ProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	now := time.Now().UTC()
	provider.CreatedAt = now
	provider.UpdatedAt = now

	query := r.db.rebind(`
		INSERT INTO providers (name, display_name, models, priority, rate_limit_rpm, enabled,
		                       encrypted_credential, config, pricing, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING
	`)

	result, err := r.db.conn.ExecContext(ctx, query,
		provider.Name, provider.DisplayName, provider.Models, provider.Priority,
		provider.RateLimitRPM, provider.Enabled, provider.EncryptedCredential,
		provider.Config, provider.Pricing, provider.CreatedAt, provider.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrProviderExists
	}
	return nil
}

// Update replaces every mutable attribute of an existing provider
func (r *ProviderRepository) Update(ctx context.Context, provider *models.Provider) error {
	provider.UpdatedAt = time.Now().UTC()

	query := r.db.rebind(`
		UPDATE providers
		SET display_name = ?, models = ?, priority = ?, rate_limit_rpm = ?, enabled = ?,
		    encrypted_credential = ?, config = ?, pricing = ?, updated_at = ?
		WHERE name = ?
	`)

	result, err := r.db.conn.ExecContext(ctx, query,
		provider.DisplayName, provider.Models, provider.Priority, provider.RateLimitRPM,
		provider.Enabled, provider.EncryptedCredential, provider.Config, provider.Pricing,
		provider.UpdatedAt, provider.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	return expectOneRow(result, ErrProviderNotFound)
}

// Upsert creates the provider or overwrites an existing one with the same name.
// Used by the startup seed file.
func (r *ProviderRepository) Upsert(ctx context.Context, provider *models.Provider) error {
	now := time.Now().UTC()
	provider.CreatedAt = now
	provider.UpdatedAt = now

	query := r.db.rebind(`
		INSERT INTO providers (name, display_name, models, priority, rate_limit_rpm, enabled,
		                       encrypted_credential, config, pricing, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			display_name = excluded.display_name,
			models = excluded.models,
			priority = excluded.priority,
			rate_limit_rpm = excluded.rate_limit_rpm,
			enabled = excluded.enabled,
			encrypted_credential = excluded.encrypted_credential,
			config = excluded.config,
			pricing = excluded.pricing,
			updated_at = excluded.updated_at
	`)

	_, err := r.db.conn.ExecContext(ctx, query,
		provider.Name, provider.DisplayName, provider.Models, provider.Priority,
		provider.RateLimitRPM, provider.Enabled, provider.EncryptedCredential,
		provider.Config, provider.Pricing, provider.CreatedAt, provider.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert provider: %w", err)
	}
	return nil
}

// SetEnabled toggles a provider without touching its other attributes
func (r *ProviderRepository) SetEnabled(ctx context.Context, name string, enabled bool) error {
	query := r.db.rebind(`UPDATE providers SET enabled = ?, updated_at = ? WHERE name = ?`)

	result, err := r.db.conn.ExecContext(ctx, query, enabled, time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	return expectOneRow(result, ErrProviderNotFound)
}

// Delete deletes a provider
func (r *ProviderRepository) Delete(ctx context.Context, name string) error {
	query := r.db.rebind(`DELETE FROM providers WHERE name = ?`)

	result, err := r.db.conn.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	return expectOneRow(result, ErrProviderNotFound)
}

// expectOneRow maps "no row affected" to notFound
func expectOneRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

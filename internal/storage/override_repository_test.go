package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

func TestOverrideRepository_SetGetDelete(t *testing.T) {
	db := newTestDB(t)
	repo := db.NewOverrideRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "user-1")
	assert.ErrorIs(t, err, ErrOverrideNotFound)

	require.NoError(t, repo.Set(ctx, &models.CustomerOverride{UserID: "user-1", ProviderName: "anthropic", ModelName: "claude"}))
	require.NoError(t, repo.Set(ctx, &models.CustomerOverride{UserID: "user-1", ProviderName: "openai"}))

	got, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "openai", got.ProviderName, "one override per user, last write wins")
	assert.Empty(t, got.ModelName)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, "user-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "user-1"), ErrOverrideNotFound)
}

func TestOverrideRepository_LookupCaches(t *testing.T) {
	db := newTestDB(t)
	repo := db.NewOverrideRepository()
	ctx := context.Background()

	none, err := repo.Lookup(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	// A write behind the repository's back is hidden by the negative entry
	_, err = db.Conn().ExecContext(ctx,
		`INSERT INTO customer_overrides (user_id, provider_name, model_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		"user-1", "groq", "", time.Now().UTC(), time.Now().UTC())
	require.NoError(t, err)

	none, err = repo.Lookup(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	repo.Invalidate("user-1")
	got, err := repo.Lookup(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "groq", got.ProviderName)
}

func TestOverrideRepository_MutationsInvalidate(t *testing.T) {
	db := newTestDB(t)
	repo := db.NewOverrideRepository()
	ctx := context.Background()

	_, err := repo.Lookup(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, repo.Set(ctx, &models.CustomerOverride{UserID: "user-1", ProviderName: "openai"}))
	got, err := repo.Lookup(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "openai", got.ProviderName)

	require.NoError(t, repo.Delete(ctx, "user-1"))
	got, err = repo.Lookup(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

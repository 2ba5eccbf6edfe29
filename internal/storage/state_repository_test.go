package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/church-connect/backend/internal/storage/models"
)

func TestStateConsumeOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewStateRepository(db)
	ctx := context.Background()

	state, err := repo.Create(ctx, "u1", models.ProviderGoogle, 10*time.Minute)
	require.NoError(t, err)

	got, err := repo.Consume(ctx, state.State, models.ProviderGoogle)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)

	// Replay fails: the token was deleted on first consume.
	got, err = repo.Consume(ctx, state.State, models.ProviderGoogle)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStateConsumeWrongProvider(t *testing.T) {
	db := newTestDB(t)
	repo := NewStateRepository(db)
	ctx := context.Background()

	state, err := repo.Create(ctx, "u1", models.ProviderGoogle, 10*time.Minute)
	require.NoError(t, err)

	got, err := repo.Consume(ctx, state.State, models.ProviderMicrosoft)
	require.NoError(t, err)
	assert.Nil(t, got)

	// The mismatched attempt still burned the token.
	got, err = repo.Consume(ctx, state.State, models.ProviderGoogle)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStateConsumeExpired(t *testing.T) {
	db := newTestDB(t)
	repo := NewStateRepository(db)
	ctx := context.Background()

	state, err := repo.Create(ctx, "u1", models.ProviderGoogle, -time.Minute)
	require.NoError(t, err)

	got, err := repo.Consume(ctx, state.State, models.ProviderGoogle)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStatePurgeExpired(t *testing.T) {
	db := newTestDB(t)
	repo := NewStateRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, "u1", models.ProviderGoogle, -time.Minute)
	require.NoError(t, err)
	live, err := repo.Create(ctx, "u2", models.ProviderGoogle, 10*time.Minute)
	require.NoError(t, err)

	require.NoError(t, repo.PurgeExpired(ctx))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM oauth_states").Scan(&count))
	assert.Equal(t, 1, count)

	got, err := repo.Consume(ctx, live.State, models.ProviderGoogle)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

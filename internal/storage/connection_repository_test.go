package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/church-connect/backend/internal/storage/models"
)

func TestConnectionCreatePrimaryDemotesPrevious(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()

	first := testConnection("u1", models.ProviderGoogle)
	first.IsPrimary = true
	require.NoError(t, repo.Create(ctx, first))

	second := testConnection("u1", models.ProviderMicrosoft)
	second.IsPrimary = true
	require.NoError(t, repo.Create(ctx, second))

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPrimary, "previous primary should be demoted")

	got, err = repo.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPrimary)
}

func TestConnectionListDueStaleness(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := testConnection("u1", models.ProviderGoogle)
	require.NoError(t, repo.Create(ctx, stale))
	require.NoError(t, repo.MarkSuccess(ctx, stale.ID, now.Add(-20*time.Minute)))

	fresh := testConnection("u2", models.ProviderGoogle)
	require.NoError(t, repo.Create(ctx, fresh))
	require.NoError(t, repo.MarkSuccess(ctx, fresh.ID, now.Add(-5*time.Minute)))

	neverSynced := testConnection("u3", models.ProviderApple)
	require.NoError(t, repo.Create(ctx, neverSynced))

	paused := testConnection("u4", models.ProviderGoogle)
	require.NoError(t, repo.Create(ctx, paused))
	require.NoError(t, repo.SetStatus(ctx, paused.ID, models.SyncStatusPaused))

	errored := testConnection("u5", models.ProviderMicrosoft)
	require.NoError(t, repo.Create(ctx, errored))
	require.NoError(t, repo.MarkFailure(ctx, errored.ID, "boom", now.Add(-30*time.Minute), 5))

	due, err := repo.ListDue(ctx, now, 15*time.Minute)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, c := range due {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{stale.ID, neverSynced.ID, errored.ID}, ids)

	// Never-synced connections sort before everything else.
	assert.Equal(t, neverSynced.ID, due[0].ID)
}

func TestConnectionClaimSingleWinner(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()

	conn := testConnection("u1", models.ProviderGoogle)
	require.NoError(t, repo.Create(ctx, conn))

	claimed, err := repo.Claim(ctx, conn.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.Claim(ctx, conn.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim must lose")

	// A paused connection cannot be claimed.
	paused := testConnection("u2", models.ProviderGoogle)
	require.NoError(t, repo.Create(ctx, paused))
	require.NoError(t, repo.SetStatus(ctx, paused.ID, models.SyncStatusPaused))

	claimed, err = repo.Claim(ctx, paused.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestConnectionMarkFailurePausesAfterThreshold(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	conn := testConnection("u1", models.ProviderGoogle)
	require.NoError(t, repo.Create(ctx, conn))

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.MarkFailure(ctx, conn.ID, "unreachable", now, 3))
	}

	got, err := repo.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, got.SyncStatus)
	assert.Equal(t, 2, got.ConsecutiveFailures)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "unreachable", *got.ErrorMessage)
	require.NotNil(t, got.LastSyncAt, "last_sync_at advances even on failure")

	require.NoError(t, repo.MarkFailure(ctx, conn.ID, "unreachable", now, 3))

	got, err = repo.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPaused, got.SyncStatus)
	assert.Equal(t, 3, got.ConsecutiveFailures)
}

func TestConnectionMarkSuccessClearsFailureState(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	conn := testConnection("u1", models.ProviderGoogle)
	require.NoError(t, repo.Create(ctx, conn))
	require.NoError(t, repo.MarkFailure(ctx, conn.ID, "flaky", now.Add(-time.Hour), 5))

	require.NoError(t, repo.MarkSuccess(ctx, conn.ID, now))

	got, err := repo.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusActive, got.SyncStatus)
	assert.Equal(t, 0, got.ConsecutiveFailures)
	assert.Nil(t, got.ErrorMessage)
	require.NotNil(t, got.LastSyncAt)
	assert.WithinDuration(t, now, *got.LastSyncAt, time.Second)
}

func TestConnectionGetByIDMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepository(db)

	got, err := repo.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

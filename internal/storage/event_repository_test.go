package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/church-connect/backend/internal/storage/models"
)

func TestEventUpsertLastWriteWins(t *testing.T) {
	db := newTestDB(t)
	connections := NewConnectionRepository(db)
	events := NewEventRepository(db)
	ctx := context.Background()

	conn := testConnection("u1", models.ProviderGoogle)
	require.NoError(t, connections.Create(ctx, conn))

	start := time.Date(2026, 9, 6, 10, 0, 0, 0, time.UTC)
	first := testEvent(conn.ID, "ext-1", "u1", start, start.Add(time.Hour))
	require.NoError(t, events.Upsert(ctx, first))

	// Same natural key, changed payload: the row is overwritten, not
	// duplicated.
	second := testEvent(conn.ID, "ext-1", "u1", start.Add(30*time.Minute), start.Add(90*time.Minute))
	second.Title = "Service planning (moved)"
	require.NoError(t, events.Upsert(ctx, second))

	count, err := events.CountByConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := events.GetByExternalID(ctx, conn.ID, "ext-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID, "row identity survives re-sync")
	assert.Equal(t, "Service planning (moved)", got.Title)
	assert.True(t, got.StartTime.Equal(start.Add(30*time.Minute)))
}

func TestEventUpsertAttendeesRoundTrip(t *testing.T) {
	db := newTestDB(t)
	connections := NewConnectionRepository(db)
	events := NewEventRepository(db)
	ctx := context.Background()

	conn := testConnection("u1", models.ProviderGoogle)
	require.NoError(t, connections.Create(ctx, conn))

	start := time.Date(2026, 9, 6, 10, 0, 0, 0, time.UTC)
	ev := testEvent(conn.ID, "ext-1", "u1", start, start.Add(time.Hour))
	ev.Attendees = []string{"u2", "u3"}
	require.NoError(t, events.Upsert(ctx, ev))

	got, err := events.GetByExternalID(ctx, conn.ID, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u3"}, got.Attendees)
}

func TestEventListVisible(t *testing.T) {
	db := newTestDB(t)
	connections := NewConnectionRepository(db)
	events := NewEventRepository(db)
	ctx := context.Background()

	conn := testConnection("owner", models.ProviderGoogle)
	require.NoError(t, connections.Create(ctx, conn))

	start := time.Date(2026, 9, 6, 10, 0, 0, 0, time.UTC)

	own := testEvent(conn.ID, "own", "viewer", start, start.Add(time.Hour))
	require.NoError(t, events.Upsert(ctx, own))

	invited := testEvent(conn.ID, "invited", "owner", start, start.Add(time.Hour))
	invited.Attendees = []string{"viewer"}
	require.NoError(t, events.Upsert(ctx, invited))

	public := testEvent(conn.ID, "public", "owner", start, start.Add(time.Hour))
	public.IsPublic = true
	require.NoError(t, events.Upsert(ctx, public))

	private := testEvent(conn.ID, "private", "owner", start, start.Add(time.Hour))
	require.NoError(t, events.Upsert(ctx, private))

	cancelled := testEvent(conn.ID, "cancelled", "viewer", start, start.Add(time.Hour))
	cancelled.Status = models.EventStatusCancelled
	require.NoError(t, events.Upsert(ctx, cancelled))

	outside := testEvent(conn.ID, "outside", "viewer", start.Add(48*time.Hour), start.Add(49*time.Hour))
	require.NoError(t, events.Upsert(ctx, outside))

	visible, err := events.ListVisible(ctx, "viewer", start.Add(-time.Hour), start.Add(24*time.Hour))
	require.NoError(t, err)

	ids := make([]string, 0, len(visible))
	for _, ev := range visible {
		ids = append(ids, ev.ExternalID)
	}
	assert.ElementsMatch(t, []string{"own", "invited", "public"}, ids)
}

func TestEventApplyCascade(t *testing.T) {
	db := newTestDB(t)
	connections := NewConnectionRepository(db)
	events := NewEventRepository(db)
	ctx := context.Background()

	conn := testConnection("u1", models.ProviderGoogle)
	require.NoError(t, connections.Create(ctx, conn))

	start := time.Date(2026, 9, 6, 10, 0, 0, 0, time.UTC)
	require.NoError(t, events.Upsert(ctx, testEvent(conn.ID, "a", "u1", start, start.Add(time.Hour))))
	require.NoError(t, events.Upsert(ctx, testEvent(conn.ID, "b", "u1", start, start.Add(time.Hour))))

	// Orphan keeps the events in place.
	require.NoError(t, events.ApplyCascade(ctx, conn.ID, CascadeOrphan))
	count, err := events.CountByConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, events.ApplyCascade(ctx, conn.ID, CascadeDelete))
	count, err = events.CountByConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

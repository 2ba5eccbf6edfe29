package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

func newTestEngine(t *testing.T) (*Engine, *storage.EventRepository, string) {
	t.Helper()

	db, err := storage.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(db))

	connections := storage.NewConnectionRepository(db)
	conn := &models.SyncConnection{
		UserID:   "u1",
		Provider: models.ProviderGoogle,
	}
	require.NoError(t, connections.Create(context.Background(), conn))

	events := storage.NewEventRepository(db)
	return NewEngine(storage.NewAvailabilityRepository(db), events), events, conn.ID
}

func storeEvent(t *testing.T, events *storage.EventRepository, connID, externalID string, start, end time.Time, status string, allDay bool) *models.CalendarEvent {
	t.Helper()
	ev := &models.CalendarEvent{
		ConnectionID: connID,
		ExternalID:   externalID,
		UserID:       "u1",
		Title:        externalID,
		StartTime:    start,
		EndTime:      end,
		AllDay:       allDay,
		Status:       status,
	}
	require.NoError(t, events.Upsert(context.Background(), ev))
	return ev
}

func TestDetectConflictsOverlappingPair(t *testing.T) {
	engine, events, connID := newTestEngine(t)
	ctx := context.Background()

	day := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)
	a := storeEvent(t, events, connID, "a", day.Add(10*time.Hour), day.Add(12*time.Hour), models.EventStatusConfirmed, false)
	b := storeEvent(t, events, connID, "b", day.Add(11*time.Hour), day.Add(13*time.Hour), models.EventStatusConfirmed, false)

	created, err := engine.DetectConflicts(ctx, "u1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, a.ID, created[0].EventID)
	require.NotNil(t, created[0].ConflictingEventID)
	assert.Equal(t, b.ID, *created[0].ConflictingEventID)
	assert.Equal(t, models.SeverityHard, created[0].Severity)

	// Re-running detection does not duplicate the conflict.
	again, err := engine.DetectConflicts(ctx, "u1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestDetectConflictsTouchingEventsDoNotConflict(t *testing.T) {
	engine, events, connID := newTestEngine(t)
	ctx := context.Background()

	day := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)
	storeEvent(t, events, connID, "a", day.Add(10*time.Hour), day.Add(11*time.Hour), models.EventStatusConfirmed, false)
	storeEvent(t, events, connID, "b", day.Add(11*time.Hour), day.Add(12*time.Hour), models.EventStatusConfirmed, false)

	created, err := engine.DetectConflicts(ctx, "u1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, created, "back-to-back events share a boundary, not time")
}

func TestDetectConflictsSkipsCancelled(t *testing.T) {
	engine, events, connID := newTestEngine(t)
	ctx := context.Background()

	day := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)
	storeEvent(t, events, connID, "a", day.Add(10*time.Hour), day.Add(12*time.Hour), models.EventStatusConfirmed, false)
	storeEvent(t, events, connID, "b", day.Add(10*time.Hour), day.Add(12*time.Hour), models.EventStatusCancelled, false)

	created, err := engine.DetectConflicts(ctx, "u1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestDetectConflictsSeverity(t *testing.T) {
	engine, events, connID := newTestEngine(t)
	ctx := context.Background()

	day := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)
	storeEvent(t, events, connID, "tentative", day.Add(10*time.Hour), day.Add(12*time.Hour), models.EventStatusTentative, false)
	storeEvent(t, events, connID, "confirmed", day.Add(11*time.Hour), day.Add(13*time.Hour), models.EventStatusConfirmed, false)
	storeEvent(t, events, connID, "allday", day, day.AddDate(0, 0, 1), models.EventStatusConfirmed, true)

	created, err := engine.DetectConflicts(ctx, "u1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, created, 3)

	for _, c := range created {
		assert.Equal(t, models.SeveritySoft, c.Severity,
			"tentative and all-day involvement makes a conflict soft")
	}
}

func TestManualSlotsNeverConflict(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	day := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)

	for i, window := range [][2]time.Time{
		{day.Add(9 * time.Hour), day.Add(12 * time.Hour)},
		{day.Add(10 * time.Hour), day.Add(11 * time.Hour)},
	} {
		slot := &models.AvailabilitySlot{
			UserID:    "u1",
			Date:      day,
			StartTime: window[0],
			EndTime:   window[1],
			Type:      "available",
		}
		require.NoError(t, engine.AddAvailability(ctx, slot), "slot %d", i)
		assert.Equal(t, models.SlotSourceManual, slot.Source)
	}

	created, err := engine.DetectConflicts(ctx, "u1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, created, "overlapping manual slots are deliberate, not conflicts")

	view, err := engine.GetAvailability(ctx, "u1", day, day.AddDate(0, 0, 1), false)
	require.NoError(t, err)
	assert.Len(t, view.Availability, 2)
	assert.Empty(t, view.Conflicts)
}

func TestAddAvailabilityValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	day := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)

	err := engine.AddAvailability(ctx, &models.AvailabilitySlot{
		Date:      day,
		StartTime: day.Add(9 * time.Hour),
		EndTime:   day.Add(10 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrInvalidSlot)

	err = engine.AddAvailability(ctx, &models.AvailabilitySlot{
		UserID:    "u1",
		Date:      day,
		StartTime: day.Add(10 * time.Hour),
		EndTime:   day.Add(10 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestResolveConflict(t *testing.T) {
	engine, events, connID := newTestEngine(t)
	ctx := context.Background()

	day := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)
	storeEvent(t, events, connID, "a", day.Add(10*time.Hour), day.Add(12*time.Hour), models.EventStatusConfirmed, false)
	storeEvent(t, events, connID, "b", day.Add(11*time.Hour), day.Add(13*time.Hour), models.EventStatusConfirmed, false)

	created, err := engine.DetectConflicts(ctx, "u1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.ErrorIs(t, engine.ResolveConflict(ctx, created[0].ID, "nonsense"), ErrInvalidResolution)
	assert.ErrorIs(t, engine.ResolveConflict(ctx, "missing", models.ConflictResolved), ErrConflictNotFound)

	require.NoError(t, engine.ResolveConflict(ctx, created[0].ID, models.ConflictResolved))

	view, err := engine.GetAvailability(ctx, "u1", day, day.AddDate(0, 0, 1), false)
	require.NoError(t, err)
	assert.Empty(t, view.Conflicts, "resolved conflicts drop out of the view")
}

package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/church-connect/backend/internal/storage/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db))
	return db
}

func testConnection(userID, provider string) *models.SyncConnection {
	return &models.SyncConnection{
		UserID:      userID,
		Provider:    provider,
		AccessToken: "token",
		SyncStatus:  models.SyncStatusActive,
	}
}

func testEvent(connectionID, externalID, userID string, start, end time.Time) *models.CalendarEvent {
	return &models.CalendarEvent{
		ConnectionID: connectionID,
		ExternalID:   externalID,
		UserID:       userID,
		Title:        "Service planning",
		StartTime:    start,
		EndTime:      end,
		Status:       models.EventStatusConfirmed,
	}
}

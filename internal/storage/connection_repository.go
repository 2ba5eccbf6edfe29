package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/church-connect/backend/internal/storage/models"
)

// ConnectionRepository provides data access for sync connections.
type ConnectionRepository struct {
	BaseRepository
}

// NewConnectionRepository creates a new sync connection repository.
func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const connectionColumns = `
	id, user_id, provider, access_token, refresh_token, token_expiry,
	provider_calendar_id, caldav_url, caldav_username, sync_direction,
	sync_frequency_min, last_sync_at, sync_status, error_message,
	consecutive_failures, is_primary, created_at, updated_at`

func scanConnection(row interface {
	Scan(dest ...any) error
}) (*models.SyncConnection, error) {
	conn := &models.SyncConnection{}
	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.Provider, &conn.AccessToken,
		&conn.RefreshToken, &conn.TokenExpiry, &conn.ProviderCalendarID,
		&conn.CalDAVURL, &conn.CalDAVUsername, &conn.SyncDirection,
		&conn.SyncFrequencyMin, &conn.LastSyncAt, &conn.SyncStatus,
		&conn.ErrorMessage, &conn.ConsecutiveFailures, &conn.IsPrimary,
		&conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Create inserts a new sync connection. When the connection is marked
// primary, any previous primary for the same user is demoted first so the
// one-primary-per-user invariant holds.
func (r *ConnectionRepository) Create(ctx context.Context, conn *models.SyncConnection) error {
	conn.ID = GenerateID()
	conn.CreatedAt = r.Now()
	conn.UpdatedAt = r.Now()
	if conn.SyncStatus == "" {
		conn.SyncStatus = models.SyncStatusActive
	}
	if conn.SyncDirection == "" {
		conn.SyncDirection = models.SyncDirectionPull
	}
	if conn.SyncFrequencyMin <= 0 {
		conn.SyncFrequencyMin = 15
	}

	return r.Transaction(func(tx *sql.Tx) error {
		if conn.IsPrimary {
			if _, err := tx.ExecContext(ctx, `
				UPDATE sync_connections SET is_primary = 0, updated_at = ? WHERE user_id = ?
			`, conn.UpdatedAt, conn.UserID); err != nil {
				return fmt.Errorf("demoting previous primary: %w", err)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_connections (
				id, user_id, provider, access_token, refresh_token, token_expiry,
				provider_calendar_id, caldav_url, caldav_username, sync_direction,
				sync_frequency_min, sync_status, consecutive_failures, is_primary,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		`,
			conn.ID, conn.UserID, conn.Provider, conn.AccessToken,
			conn.RefreshToken, conn.TokenExpiry, conn.ProviderCalendarID,
			conn.CalDAVURL, conn.CalDAVUsername, conn.SyncDirection,
			conn.SyncFrequencyMin, conn.SyncStatus, conn.IsPrimary,
			conn.CreatedAt, conn.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting connection: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a connection by its ID.
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*models.SyncConnection, error) {
	row := r.DB().QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM sync_connections WHERE id = ?`, id)

	conn, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection: %w", err)
	}
	return conn, nil
}

// GetByUserProvider retrieves a user's connection for a given provider.
func (r *ConnectionRepository) GetByUserProvider(ctx context.Context, userID, provider string) (*models.SyncConnection, error) {
	row := r.DB().QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM sync_connections WHERE user_id = ? AND provider = ?`,
		userID, provider)

	conn, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection: %w", err)
	}
	return conn, nil
}

// ListByUser retrieves all connections for a user.
func (r *ConnectionRepository) ListByUser(ctx context.Context, userID string) ([]models.SyncConnection, error) {
	rows, err := r.DB().QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM sync_connections WHERE user_id = ? ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	return collectConnections(rows)
}

// ListDue retrieves connections eligible for syncing at the given time:
// active or errored connections whose last sync is older than the staleness
// window (or that have never synced). Paused connections are excluded.
func (r *ConnectionRepository) ListDue(ctx context.Context, now time.Time, staleness time.Duration) ([]models.SyncConnection, error) {
	cutoff := now.Add(-staleness)

	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+connectionColumns+`
		FROM sync_connections
		WHERE sync_status IN (?, ?)
		  AND (last_sync_at IS NULL OR last_sync_at <= ?)
		ORDER BY last_sync_at ASC NULLS FIRST
	`, models.SyncStatusActive, models.SyncStatusError, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying due connections: %w", err)
	}
	defer rows.Close()

	return collectConnections(rows)
}

func collectConnections(rows *sql.Rows) ([]models.SyncConnection, error) {
	var conns []models.SyncConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		conns = append(conns, *conn)
	}
	return conns, rows.Err()
}

// Claim atomically marks a connection as syncing so overlapping batch runs
// cannot double-process it. It returns false when another run got there
// first or the connection is paused.
func (r *ConnectionRepository) Claim(ctx context.Context, id string) (bool, error) {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE sync_connections SET sync_status = ?, updated_at = ?
		WHERE id = ? AND sync_status IN (?, ?)
	`, models.SyncStatusSyncing, r.Now(), id, models.SyncStatusActive, models.SyncStatusError)
	if err != nil {
		return false, fmt.Errorf("claiming connection: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected == 1, nil
}

// MarkSuccess records a successful sync: status back to active, error and
// failure counter cleared, last_sync_at advanced.
func (r *ConnectionRepository) MarkSuccess(ctx context.Context, id string, now time.Time) error {
	_, err := r.DB().ExecContext(ctx, `
		UPDATE sync_connections SET
			sync_status = ?, error_message = NULL, consecutive_failures = 0,
			last_sync_at = ?, updated_at = ?
		WHERE id = ?
	`, models.SyncStatusActive, now, now, id)
	if err != nil {
		return fmt.Errorf("marking connection success: %w", err)
	}
	return nil
}

// MarkFailure records a failed sync attempt. last_sync_at still advances so
// the staleness window keeps the connection out of a tight retry loop. Once
// the consecutive failure count reaches pauseAfter the connection is paused
// until a user resumes it.
func (r *ConnectionRepository) MarkFailure(ctx context.Context, id, errMsg string, now time.Time, pauseAfter int) error {
	if pauseAfter <= 0 {
		pauseAfter = 5
	}

	_, err := r.DB().ExecContext(ctx, `
		UPDATE sync_connections SET
			consecutive_failures = consecutive_failures + 1,
			sync_status = CASE WHEN consecutive_failures + 1 >= ? THEN ? ELSE ? END,
			error_message = ?, last_sync_at = ?, updated_at = ?
		WHERE id = ?
	`, pauseAfter, models.SyncStatusPaused, models.SyncStatusError, errMsg, now, now, id)
	if err != nil {
		return fmt.Errorf("marking connection failure: %w", err)
	}
	return nil
}

// UpdateTokens persists refreshed provider tokens on the connection row.
func (r *ConnectionRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiry *time.Time) error {
	_, err := r.DB().ExecContext(ctx, `
		UPDATE sync_connections SET
			access_token = ?, refresh_token = ?, token_expiry = ?, updated_at = ?
		WHERE id = ?
	`, accessToken, refreshToken, expiry, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating tokens: %w", err)
	}
	return nil
}

// SetStatus transitions a connection to the given status. Used by the
// pause/resume endpoints.
func (r *ConnectionRepository) SetStatus(ctx context.Context, id, status string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE sync_connections SET sync_status = ?, updated_at = ? WHERE id = ?
	`, status, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating connection status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("connection not found: %s", id)
	}
	return nil
}

// Delete removes a connection. Callers apply the event cascade policy first
// so no events are left pointing at a missing connection by accident.
func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.DB().ExecContext(ctx,
		`DELETE FROM sync_connections WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/church-connect/backend/internal/storage/models"
)

// CascadePolicy controls what happens to a connection's events when the
// connection is removed from service.
type CascadePolicy string

const (
	// CascadeOrphan leaves events in place (default).
	CascadeOrphan CascadePolicy = "orphan"
	// CascadeDelete removes the connection's events.
	CascadeDelete CascadePolicy = "delete"
)

// EventRepository provides data access for synced calendar events.
type EventRepository struct {
	BaseRepository
}

// NewEventRepository creates a new calendar event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const eventColumns = `
	id, connection_id, external_id, user_id, title, description,
	start_time, end_time, all_day, location, attendees, recurrence_rule,
	status, is_public, last_synced_at, created_at`

func scanEvent(row interface {
	Scan(dest ...any) error
}) (*models.CalendarEvent, error) {
	ev := &models.CalendarEvent{}
	var attendees string
	err := row.Scan(
		&ev.ID, &ev.ConnectionID, &ev.ExternalID, &ev.UserID, &ev.Title,
		&ev.Description, &ev.StartTime, &ev.EndTime, &ev.AllDay,
		&ev.Location, &attendees, &ev.RecurrenceRule, &ev.Status,
		&ev.IsPublic, &ev.LastSyncedAt, &ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if attendees != "" {
		if err := json.Unmarshal([]byte(attendees), &ev.Attendees); err != nil {
			return nil, fmt.Errorf("decoding attendees: %w", err)
		}
	}
	return ev, nil
}

// Upsert inserts or overwrites an event keyed by (connection_id,
// external_id). All mutable fields are replaced (last-write-wins) and
// last_synced_at is refreshed.
func (r *EventRepository) Upsert(ctx context.Context, ev *models.CalendarEvent) error {
	if ev.ID == "" {
		ev.ID = GenerateID()
	}
	if ev.Status == "" {
		ev.Status = models.EventStatusConfirmed
	}
	ev.LastSyncedAt = r.Now()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = ev.LastSyncedAt
	}

	attendees, err := json.Marshal(ev.Attendees)
	if err != nil {
		return fmt.Errorf("encoding attendees: %w", err)
	}
	if ev.Attendees == nil {
		attendees = []byte("[]")
	}

	_, err = r.DB().ExecContext(ctx, `
		INSERT INTO calendar_events (
			id, connection_id, external_id, user_id, title, description,
			start_time, end_time, all_day, location, attendees,
			recurrence_rule, status, is_public, last_synced_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (connection_id, external_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			all_day = excluded.all_day,
			location = excluded.location,
			attendees = excluded.attendees,
			recurrence_rule = excluded.recurrence_rule,
			status = excluded.status,
			last_synced_at = excluded.last_synced_at
	`,
		ev.ID, ev.ConnectionID, ev.ExternalID, ev.UserID, ev.Title,
		ev.Description, ev.StartTime.UTC(), ev.EndTime.UTC(), ev.AllDay,
		ev.Location, string(attendees), ev.RecurrenceRule, ev.Status,
		ev.IsPublic, ev.LastSyncedAt, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting event: %w", err)
	}
	return nil
}

// GetByExternalID retrieves an event by its natural key.
func (r *EventRepository) GetByExternalID(ctx context.Context, connectionID, externalID string) (*models.CalendarEvent, error) {
	row := r.DB().QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE connection_id = ? AND external_id = ?`,
		connectionID, externalID)

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return ev, nil
}

// ListByUserRange retrieves all events for a user within [start, end),
// ordered by start time. Cancelled events are included; callers filter.
func (r *EventRepository) ListByUserRange(ctx context.Context, userID string, start, end time.Time) ([]models.CalendarEvent, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM calendar_events
		WHERE user_id = ? AND start_time < ? AND end_time > ?
		ORDER BY start_time, title
	`, userID, end.UTC(), start.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListVisible retrieves the events a user is allowed to see in a range:
// events they own, events naming them as attendee, and public events.
// Cancelled events are excluded.
func (r *EventRepository) ListVisible(ctx context.Context, userID string, start, end time.Time) ([]models.CalendarEvent, error) {
	// Attendees are stored as a JSON array of identifiers; the LIKE match
	// is on the quoted element.
	attendeePattern := `%"` + userID + `"%`

	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM calendar_events
		WHERE start_time < ? AND end_time > ?
		  AND status != ?
		  AND (user_id = ? OR attendees LIKE ? OR is_public = 1)
		ORDER BY start_time, title
	`, end.UTC(), start.UTC(), models.EventStatusCancelled, userID, attendeePattern)
	if err != nil {
		return nil, fmt.Errorf("querying visible events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// CountByConnection returns the number of stored events for a connection.
func (r *EventRepository) CountByConnection(ctx context.Context, connectionID string) (int, error) {
	var count int
	err := r.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM calendar_events WHERE connection_id = ?`, connectionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

// ApplyCascade applies the configured cascade policy for a connection that
// has been taken out of service.
func (r *EventRepository) ApplyCascade(ctx context.Context, connectionID string, policy CascadePolicy) error {
	if policy != CascadeDelete {
		return nil
	}

	if _, err := r.DB().ExecContext(ctx,
		`DELETE FROM calendar_events WHERE connection_id = ?`, connectionID); err != nil {
		return fmt.Errorf("deleting connection events: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/church-connect/backend/internal/storage/models"
)

// AvailabilityRepository provides data access for availability slots and
// event conflicts.
type AvailabilityRepository struct {
	BaseRepository
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *DB) *AvailabilityRepository {
	return &AvailabilityRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// CreateSlot inserts an availability slot. Overlapping slots are not merged
// or deduplicated; a user may declare overlapping preference windows.
func (r *AvailabilityRepository) CreateSlot(ctx context.Context, slot *models.AvailabilitySlot) error {
	slot.ID = GenerateID()
	slot.CreatedAt = r.Now()
	if slot.Source == "" {
		slot.Source = models.SlotSourceManual
	}
	if slot.Type == "" {
		slot.Type = "available"
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO availability_slots (
			id, user_id, date, start_time, end_time, type, source, is_private, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		slot.ID, slot.UserID, slot.Date.UTC(), slot.StartTime.UTC(),
		slot.EndTime.UTC(), slot.Type, slot.Source, slot.IsPrivate, slot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting availability slot: %w", err)
	}
	return nil
}

// ListSlots retrieves a user's slots within [start, end), ordered by
// (date, start_time).
func (r *AvailabilityRepository) ListSlots(ctx context.Context, userID string, start, end time.Time) ([]models.AvailabilitySlot, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, user_id, date, start_time, end_time, type, source, is_private, created_at
		FROM availability_slots
		WHERE user_id = ? AND date >= ? AND date < ?
		ORDER BY date, start_time
	`, userID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying availability slots: %w", err)
	}
	defer rows.Close()

	var slots []models.AvailabilitySlot
	for rows.Next() {
		var s models.AvailabilitySlot
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Date, &s.StartTime, &s.EndTime,
			&s.Type, &s.Source, &s.IsPrivate, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning availability slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// CreateConflict records an overlap between two events. Re-detecting an
// already-recorded pair is a no-op.
func (r *AvailabilityRepository) CreateConflict(ctx context.Context, c *models.EventConflict) error {
	c.ID = GenerateID()
	c.DetectedAt = r.Now()
	if c.ConflictType == "" {
		c.ConflictType = "overlap"
	}
	if c.Severity == "" {
		c.Severity = models.SeveritySoft
	}
	c.ResolutionStatus = models.ConflictUnresolved

	_, err := r.DB().ExecContext(ctx, `
		INSERT OR IGNORE INTO event_conflicts (
			id, user_id, event_id, conflicting_event_id, conflict_type,
			severity, resolution_status, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.UserID, c.EventID, c.ConflictingEventID, c.ConflictType,
		c.Severity, c.ResolutionStatus, c.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting conflict: %w", err)
	}
	return nil
}

// HasConflictPair reports whether a conflict is already recorded for the
// event pair, in either order.
func (r *AvailabilityRepository) HasConflictPair(ctx context.Context, userID, eventA, eventB string) (bool, error) {
	var count int
	err := r.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM event_conflicts
		WHERE user_id = ?
		  AND ((event_id = ? AND conflicting_event_id = ?)
		    OR (event_id = ? AND conflicting_event_id = ?))
	`, userID, eventA, eventB, eventB, eventA).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking conflict pair: %w", err)
	}
	return count > 0, nil
}

// ListUnresolved retrieves a user's unresolved conflicts whose primary
// event falls within [start, end).
func (r *AvailabilityRepository) ListUnresolved(ctx context.Context, userID string, start, end time.Time) ([]models.EventConflict, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT c.id, c.user_id, c.event_id, c.conflicting_event_id,
		       c.conflict_type, c.severity, c.resolution_status, c.detected_at
		FROM event_conflicts c
		JOIN calendar_events e ON e.id = c.event_id
		WHERE c.user_id = ? AND c.resolution_status = ?
		  AND e.start_time < ? AND e.end_time > ?
		ORDER BY e.start_time
	`, userID, models.ConflictUnresolved, end.UTC(), start.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []models.EventConflict
	for rows.Next() {
		var c models.EventConflict
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.EventID, &c.ConflictingEventID,
			&c.ConflictType, &c.Severity, &c.ResolutionStatus, &c.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// Resolve closes a conflict with the given resolution status.
func (r *AvailabilityRepository) Resolve(ctx context.Context, id, status string) error {
	if status != models.ConflictResolved && status != models.ConflictIgnored {
		return fmt.Errorf("invalid resolution status: %s", status)
	}

	result, err := r.DB().ExecContext(ctx, `
		UPDATE event_conflicts SET resolution_status = ? WHERE id = ?
	`, status, id)
	if err != nil {
		return fmt.Errorf("resolving conflict: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

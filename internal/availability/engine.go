// Package availability computes merged availability and detects
// overlapping-event conflicts.
package availability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

// Errors surfaced to the HTTP layer.
var (
	ErrInvalidSlot       = errors.New("invalid availability slot")
	ErrConflictNotFound  = errors.New("conflict not found")
	ErrInvalidResolution = errors.New("invalid resolution status")
)

// Engine answers availability queries and maintains conflict records.
type Engine struct {
	slots  *storage.AvailabilityRepository
	events *storage.EventRepository
}

// NewEngine creates an availability engine over the given repositories.
func NewEngine(slots *storage.AvailabilityRepository, events *storage.EventRepository) *Engine {
	return &Engine{
		slots:  slots,
		events: events,
	}
}

// GetAvailability returns a user's manual slots in [start, end), the events
// visible to them when includeEvents is set (cancelled excluded), and their
// unresolved conflicts in range.
func (e *Engine) GetAvailability(ctx context.Context, userID string, start, end time.Time, includeEvents bool) (*models.AvailabilityView, error) {
	view := &models.AvailabilityView{
		Availability: []models.AvailabilitySlot{},
		Events:       []models.CalendarEvent{},
		Conflicts:    []models.EventConflict{},
	}

	slots, err := e.slots.ListSlots(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing slots: %w", err)
	}
	if slots != nil {
		view.Availability = slots
	}

	if includeEvents {
		events, err := e.events.ListVisible(ctx, userID, start, end)
		if err != nil {
			return nil, fmt.Errorf("listing events: %w", err)
		}
		if events != nil {
			view.Events = events
		}
	}

	conflicts, err := e.slots.ListUnresolved(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}
	if conflicts != nil {
		view.Conflicts = conflicts
	}

	return view, nil
}

// AddAvailability inserts a manual slot. Overlapping manual slots are
// allowed and never generate conflicts; a user may declare two overlapping
// preference windows on purpose.
func (e *Engine) AddAvailability(ctx context.Context, slot *models.AvailabilitySlot) error {
	if slot.UserID == "" {
		return fmt.Errorf("%w: slot requires a user", ErrInvalidSlot)
	}
	if !slot.EndTime.After(slot.StartTime) {
		return fmt.Errorf("%w: slot end must be after start", ErrInvalidSlot)
	}
	slot.Source = models.SlotSourceManual
	return e.slots.CreateSlot(ctx, slot)
}

// DetectConflicts scans a user's events in [start, end) and records a
// conflict for every overlapping pair not already on file. Intervals are
// half-open, so events that merely touch do not conflict. It returns the
// newly created conflicts.
func (e *Engine) DetectConflicts(ctx context.Context, userID string, start, end time.Time) ([]models.EventConflict, error) {
	events, err := e.events.ListByUserRange(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	var created []models.EventConflict
	for i := 0; i < len(events); i++ {
		if events[i].Status == models.EventStatusCancelled {
			continue
		}
		for j := i + 1; j < len(events); j++ {
			if events[j].Status == models.EventStatusCancelled {
				continue
			}
			if !events[i].Overlaps(&events[j]) {
				continue
			}

			exists, err := e.slots.HasConflictPair(ctx, userID, events[i].ID, events[j].ID)
			if err != nil {
				return created, err
			}
			if exists {
				continue
			}

			conflictingID := events[j].ID
			conflict := models.EventConflict{
				UserID:             userID,
				EventID:            events[i].ID,
				ConflictingEventID: &conflictingID,
				ConflictType:       "overlap",
				Severity:           classifySeverity(&events[i], &events[j]),
			}
			if err := e.slots.CreateConflict(ctx, &conflict); err != nil {
				return created, err
			}
			created = append(created, conflict)
		}
	}

	return created, nil
}

// ResolveConflict closes a conflict as resolved or ignored.
func (e *Engine) ResolveConflict(ctx context.Context, id, status string) error {
	if status != models.ConflictResolved && status != models.ConflictIgnored {
		return ErrInvalidResolution
	}
	if err := e.slots.Resolve(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConflictNotFound
		}
		return err
	}
	return nil
}

// classifySeverity applies the severity policy: two confirmed timed events
// are a hard conflict; anything involving a tentative or all-day event is
// soft.
func classifySeverity(a, b *models.CalendarEvent) string {
	if a.Status == models.EventStatusConfirmed && b.Status == models.EventStatusConfirmed &&
		!a.AllDay && !b.AllDay {
		return models.SeverityHard
	}
	return models.SeveritySoft
}

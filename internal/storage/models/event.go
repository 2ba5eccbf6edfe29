package models

import (
	"time"
)

// Event status constants (normalized across providers).
const (
	EventStatusConfirmed = "confirmed"
	EventStatusTentative = "tentative"
	EventStatusCancelled = "cancelled"
)

// CalendarEvent is a remote event reconciled into local storage. Rows are
// keyed by (connection_id, external_id); a re-sync fully overwrites the
// mutable fields (last-write-wins) and refreshes LastSyncedAt.
type CalendarEvent struct {
	ID             string     `json:"id"`
	ConnectionID   string     `json:"connection_id"`
	ExternalID     string     `json:"external_id"`
	UserID         string     `json:"user_id"`
	Title          string     `json:"title"`
	Description    *string    `json:"description,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	AllDay         bool       `json:"all_day"`
	Location       *string    `json:"location,omitempty"`
	Attendees      []string   `json:"attendees,omitempty"`
	RecurrenceRule *string    `json:"recurrence_rule,omitempty"`
	Status         string     `json:"status"`
	IsPublic       bool       `json:"is_public"`
	LastSyncedAt   time.Time  `json:"last_synced_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Overlaps reports whether two events occupy intersecting time ranges.
// Intervals are half-open: touching events (a.End == b.Start) do not overlap.
func (e *CalendarEvent) Overlaps(other *CalendarEvent) bool {
	return e.StartTime.Before(other.EndTime) && other.StartTime.Before(e.EndTime)
}

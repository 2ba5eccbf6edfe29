package models

import (
	"time"
)

// Availability slot sources.
const (
	SlotSourceManual = "manual"
	SlotSourceSynced = "synced"
)

// AvailabilitySlot is a declared window of availability (or unavailability)
// for a user. Manual slots are user-created and never touched by sync;
// synced slots are derived from calendar events.
type AvailabilitySlot struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Date      time.Time `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	IsPrivate bool      `json:"is_private"`
	CreatedAt time.Time `json:"created_at"`
}

// Conflict resolution statuses.
const (
	ConflictUnresolved = "unresolved"
	ConflictResolved   = "resolved"
	ConflictIgnored    = "ignored"
)

// Conflict severities.
const (
	SeverityHard = "hard"
	SeveritySoft = "soft"
)

// EventConflict records two overlapping events for the same user. It is
// created by conflict detection and closed when a human or automated rule
// sets ResolutionStatus.
type EventConflict struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	EventID            string    `json:"event_id"`
	ConflictingEventID *string   `json:"conflicting_event_id,omitempty"`
	ConflictType       string    `json:"conflict_type"`
	Severity           string    `json:"severity"`
	ResolutionStatus   string    `json:"resolution_status"`
	DetectedAt         time.Time `json:"detected_at"`
}

// AvailabilityView is the combined response of an availability query.
type AvailabilityView struct {
	Availability []AvailabilitySlot `json:"availability"`
	Events       []CalendarEvent    `json:"events"`
	Conflicts    []EventConflict    `json:"conflicts"`
}

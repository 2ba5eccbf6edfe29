// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Provider identifiers for sync connections.
const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
	ProviderApple     = "apple"
)

// SyncStatus constants for a sync connection's lifecycle.
const (
	SyncStatusActive  = "active"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
	SyncStatusPaused  = "paused"
)

// Sync direction constants.
const (
	SyncDirectionPull = "pull"
	SyncDirectionPush = "push"
	SyncDirectionBoth = "both"
)

// SyncConnection links a user account to one external calendar provider.
// Pausing keeps a connection's history; deleting one applies the configured
// cascade policy to its events.
type SyncConnection struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	Provider           string     `json:"provider"`
	AccessToken        string     `json:"-"`
	RefreshToken       string     `json:"-"`
	TokenExpiry        *time.Time `json:"-"`
	ProviderCalendarID string     `json:"provider_calendar_id"`
	CalDAVURL          string     `json:"-"`
	CalDAVUsername     string     `json:"-"`
	SyncDirection      string     `json:"sync_direction"`
	SyncFrequencyMin   int        `json:"sync_frequency_min"`
	LastSyncAt         *time.Time `json:"last_sync_at,omitempty"`
	SyncStatus         string     `json:"sync_status"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	IsPrimary          bool       `json:"is_primary"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SyncResult summarizes one connection's outcome within a batch run.
type SyncResult struct {
	ConnectionID string  `json:"connection_id"`
	Provider     string  `json:"provider"`
	UserID       string  `json:"user_id"`
	EventsSynced int     `json:"events_synced"`
	Status       string  `json:"status"`
	Error        *string `json:"error,omitempty"`
}

// BatchResult is the aggregate outcome of a RunDueSyncs pass. Callers use
// it for observability, not control flow.
type BatchResult struct {
	ConnectionsProcessed int          `json:"connections_processed"`
	Results              []SyncResult `json:"results"`
	StartedAt            time.Time    `json:"started_at"`
	FinishedAt           time.Time    `json:"finished_at"`
}

// OAuthState is a single-use anti-forgery token issued when redirecting a
// user to a provider's consent screen.
type OAuthState struct {
	State     string    `json:"state"`
	UserID    string    `json:"user_id"`
	Provider  string    `json:"provider"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the state token is past its expiry.
func (s *OAuthState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

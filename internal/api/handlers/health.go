// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/sync"
	"github.com/church-connect/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.Ping() == nil

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		response := HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	ConnectionsTotal    int    `json:"connections_total"`
	ConnectionsActive   int    `json:"connections_active"`
	ConnectionsError    int    `json:"connections_error"`
	ConnectionsPaused   int    `json:"connections_paused"`
	EventsTotal         int    `json:"events_total"`
	UnresolvedConflicts int    `json:"unresolved_conflicts"`
	WebSocketClients    int    `json:"websocket_clients"`
	NextSyncAt          string `json:"next_sync_at,omitempty"`
}

// Status returns a handler that provides system status information.
func Status(db *storage.DB, hub *websocket.Hub, scheduler *sync.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var response StatusResponse
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_connections").Scan(&response.ConnectionsTotal)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_connections WHERE sync_status = 'active'").Scan(&response.ConnectionsActive)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_connections WHERE sync_status = 'error'").Scan(&response.ConnectionsError)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_connections WHERE sync_status = 'paused'").Scan(&response.ConnectionsPaused)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calendar_events").Scan(&response.EventsTotal)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_conflicts WHERE resolution_status = 'unresolved'").Scan(&response.UnresolvedConflicts)
		response.WebSocketClients = hub.ClientCount()

		if scheduler != nil {
			if next := scheduler.NextRun(); next != nil {
				response.NextSyncAt = next.UTC().Format(time.RFC3339)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

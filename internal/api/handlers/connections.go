package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/church-connect/backend/internal/api/middleware"
	"github.com/church-connect/backend/internal/provider"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
	"github.com/church-connect/backend/internal/sync"
)

// ListConnections returns all sync connections for a user.
func ListConnections(connections *storage.ConnectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "user_id is required")
			return
		}

		conns, err := connections.ListByUser(r.Context(), userID)
		if err != nil {
			log.Printf("Failed to list connections for user %s: %v", userID, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to list connections")
			return
		}
		if conns == nil {
			conns = []models.SyncConnection{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(conns)
	}
}

// PauseConnection stops a connection from being picked up by the scheduler.
func PauseConnection(connections *storage.ConnectionRepository) http.HandlerFunc {
	return setConnectionStatus(connections, models.SyncStatusPaused)
}

// ResumeConnection returns a paused or errored connection to active. It also
// clears the failure counter so the next sync starts fresh.
func ResumeConnection(connections *storage.ConnectionRepository) http.HandlerFunc {
	return setConnectionStatus(connections, models.SyncStatusActive)
}

func setConnectionStatus(connections *storage.ConnectionRepository, status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		conn, err := connections.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load connection")
			return
		}
		if conn == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Connection not found")
			return
		}

		if err := connections.SetStatus(r.Context(), id, status); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update connection")
			return
		}

		conn.SyncStatus = status
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(conn)
	}
}

// DeleteConnection removes a connection after applying the cascade policy
// to its events: orphan keeps them, delete removes them.
func DeleteConnection(connections *storage.ConnectionRepository, events *storage.EventRepository, policy storage.CascadePolicy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		conn, err := connections.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load connection")
			return
		}
		if conn == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Connection not found")
			return
		}

		if err := events.ApplyCascade(r.Context(), id, policy); err != nil {
			log.Printf("Cascade failed for connection %s: %v", id, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to apply event cascade")
			return
		}
		if err := connections.Delete(r.Context(), id); err != nil {
			log.Printf("Failed to delete connection %s: %v", id, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to delete connection")
			return
		}

		log.Printf("Deleted %s connection %s (cascade: %s)", conn.Provider, id, policy)
		w.WriteHeader(http.StatusNoContent)
	}
}

// TriggerSync runs a single connection's sync immediately, outside the
// scheduler's staleness window.
func TriggerSync(orchestrator *sync.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		result, err := orchestrator.SyncNow(r.Context(), id)
		if err != nil {
			if errors.Is(err, sync.ErrConnectionNotFound) {
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Connection not found")
				return
			}
			if errors.Is(err, sync.ErrConnectionBusy) {
				middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Connection is already syncing")
				return
			}
			log.Printf("Manual sync failed for connection %s: %v", id, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Sync failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// CreateAppleConnectionRequest carries iCloud CalDAV credentials. The
// password must be an app-specific password, not the account password.
type CreateAppleConnectionRequest struct {
	UserID      string `json:"user_id"`
	AppleID     string `json:"apple_id"`
	AppPassword string `json:"app_password"`
	CalendarURL string `json:"calendar_url,omitempty"`
}

// CreateAppleConnection verifies iCloud credentials via CalDAV discovery and
// creates a sync connection against the chosen (or first) calendar.
func CreateAppleConnection(apple *provider.AppleProvider, connections *storage.ConnectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppleConnectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.UserID == "" || req.AppleID == "" || req.AppPassword == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "user_id, apple_id and app_password are required")
			return
		}

		calendars, err := apple.Authenticate(r.Context(), req.AppleID, req.AppPassword)
		if err != nil {
			var authErr *provider.AuthError
			if errors.As(err, &authErr) {
				middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "iCloud rejected the credentials")
				return
			}
			log.Printf("CalDAV discovery failed for user %s: %v", req.UserID, err)
			middleware.WriteError(w, http.StatusBadGateway, middleware.ErrInternalError, "Could not reach iCloud")
			return
		}

		calendarURL := req.CalendarURL
		if calendarURL == "" {
			calendarURL = calendars[0].Path
		}

		existing, err := connections.GetByUserProvider(r.Context(), req.UserID, models.ProviderApple)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to check existing connection")
			return
		}
		if existing != nil {
			middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "An Apple connection already exists for this user")
			return
		}

		conn := &models.SyncConnection{
			UserID:             req.UserID,
			Provider:           models.ProviderApple,
			AccessToken:        req.AppPassword,
			CalDAVURL:          calendarURL,
			CalDAVUsername:     req.AppleID,
			ProviderCalendarID: calendarURL,
			SyncDirection:      models.SyncDirectionPull,
			SyncStatus:         models.SyncStatusActive,
			IsPrimary:          true,
		}
		if err := connections.Create(r.Context(), conn); err != nil {
			log.Printf("Failed to create apple connection for user %s: %v", req.UserID, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create connection")
			return
		}

		log.Printf("Connected apple calendar for user %s (%d calendars discovered)", req.UserID, len(calendars))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(conn)
	}
}

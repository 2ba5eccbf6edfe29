package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/church-connect/backend/internal/api/middleware"
	"github.com/church-connect/backend/internal/availability"
	"github.com/church-connect/backend/internal/storage/models"
)

// dateOnly is the wire format for availability date parameters.
const dateOnly = "2006-01-02"

// GetAvailability returns a user's availability slots, unresolved conflicts
// and optionally their visible events for a date range.
func GetAvailability(engine *availability.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		userID := q.Get("user_id")
		if userID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "user_id is required")
			return
		}

		start, err := parseDateParam(q.Get("start_date"), time.Now().UTC())
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "start_date must be YYYY-MM-DD")
			return
		}
		end, err := parseDateParam(q.Get("end_date"), start.AddDate(0, 0, 30))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "end_date must be YYYY-MM-DD")
			return
		}
		if !end.After(start) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "end_date must be after start_date")
			return
		}

		includeEvents := q.Get("include_events") == "true"

		view, err := engine.GetAvailability(r.Context(), userID, start, end, includeEvents)
		if err != nil {
			log.Printf("Failed to load availability for user %s: %v", userID, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load availability")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(view)
	}
}

// CreateAvailabilityRequest is the body for declaring an availability slot.
type CreateAvailabilityRequest struct {
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Type      string    `json:"type"`
	IsPrivate bool      `json:"is_private"`
}

// CreateAvailability records a manual availability slot.
func CreateAvailability(engine *availability.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		date, err := time.ParseInLocation(dateOnly, req.Date, time.UTC)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "date must be YYYY-MM-DD")
			return
		}

		slot := &models.AvailabilitySlot{
			UserID:    req.UserID,
			Date:      date,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Type:      req.Type,
			IsPrivate: req.IsPrivate,
		}
		if err := engine.AddAvailability(r.Context(), slot); err != nil {
			if errors.Is(err, availability.ErrInvalidSlot) {
				middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation,
					"Invalid availability slot", err.Error())
				return
			}
			log.Printf("Failed to create availability slot for user %s: %v", req.UserID, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create availability slot")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(slot)
	}
}

// ResolveConflictRequest sets the resolution status of a conflict.
type ResolveConflictRequest struct {
	Status string `json:"status"`
}

// ResolveConflict marks a detected conflict as resolved or ignored.
func ResolveConflict(engine *availability.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req ResolveConflictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		if err := engine.ResolveConflict(r.Context(), id, req.Status); err != nil {
			switch {
			case errors.Is(err, availability.ErrConflictNotFound):
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Conflict not found")
			case errors.Is(err, availability.ErrInvalidResolution):
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "status must be resolved or ignored")
			default:
				log.Printf("Failed to resolve conflict %s: %v", id, err)
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to resolve conflict")
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": id, "resolution_status": req.Status})
	}
}

func parseDateParam(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback.Truncate(24 * time.Hour), nil
	}
	return time.ParseInLocation(dateOnly, value, time.UTC)
}

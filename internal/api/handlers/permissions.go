package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/church-connect/backend/internal/access"
	"github.com/church-connect/backend/internal/api/middleware"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

// userFromRequest reads the caller's identity from the headers set by the
// upstream CMS proxy. Requests without an identity get an empty user, which
// every access check denies.
func userFromRequest(r *http.Request) *models.User {
	return &models.User{
		ID:       r.Header.Get("X-User-ID"),
		Role:     r.Header.Get("X-User-Role"),
		ChurchID: r.Header.Get("X-User-Church"),
	}
}

// CreateCalendarRequest is the body for registering a calendar.
type CreateCalendarRequest struct {
	Name     string  `json:"name"`
	OwnerID  *string `json:"owner_user_id,omitempty"`
	ChurchID *string `json:"church_id,omitempty"`
	IsPublic bool    `json:"is_public"`
}

// CreateCalendar registers a calendar for permission tracking.
func CreateCalendar(permissions *storage.PermissionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateCalendarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.Name == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Name is required")
			return
		}

		cal := &models.Calendar{
			Name:        req.Name,
			OwnerUserID: req.OwnerID,
			ChurchID:    req.ChurchID,
			IsPublic:    req.IsPublic,
		}
		if err := permissions.CreateCalendar(r.Context(), cal); err != nil {
			log.Printf("Failed to create calendar: %v", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create calendar")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(cal)
	}
}

// ListPermissions returns a calendar's grants. The caller must be able to
// access the calendar.
func ListPermissions(permissions *storage.PermissionRepository, checker *access.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calendarID := mux.Vars(r)["id"]

		cal, allowed := loadAndAuthorize(w, r, permissions, checker, calendarID, false)
		if !allowed {
			return
		}

		grants, err := permissions.ListByCalendar(r.Context(), cal.ID)
		if err != nil {
			log.Printf("Failed to list permissions for calendar %s: %v", cal.ID, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to list permissions")
			return
		}

		// Expired grants stay on file but are not reported as active.
		now := time.Now().UTC()
		active := []models.CalendarPermission{}
		for _, g := range grants {
			if g.Active(now) {
				active = append(active, g)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(active)
	}
}

// GrantPermissionRequest is the body for granting calendar access. Exactly
// one of user_id, role or church_id should be set.
type GrantPermissionRequest struct {
	UserID    *string    `json:"user_id,omitempty"`
	Role      *string    `json:"role,omitempty"`
	ChurchID  *string    `json:"church_id,omitempty"`
	Level     string     `json:"level"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// GrantPermission adds a grant on a calendar. The caller must be able to
// manage the calendar.
func GrantPermission(permissions *storage.PermissionRepository, checker *access.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calendarID := mux.Vars(r)["id"]

		cal, allowed := loadAndAuthorize(w, r, permissions, checker, calendarID, true)
		if !allowed {
			return
		}

		var req GrantPermissionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		if req.Level != models.PermissionRead && req.Level != models.PermissionWrite {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "level must be read or write")
			return
		}
		if req.UserID == nil && req.Role == nil && req.ChurchID == nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "A grantee (user_id, role or church_id) is required")
			return
		}

		grant := &models.CalendarPermission{
			CalendarID: cal.ID,
			UserID:     req.UserID,
			Role:       req.Role,
			ChurchID:   req.ChurchID,
			Level:      req.Level,
			GrantedBy:  userFromRequest(r).ID,
			ExpiresAt:  req.ExpiresAt,
		}
		if err := permissions.CreatePermission(r.Context(), grant); err != nil {
			log.Printf("Failed to grant permission on calendar %s: %v", cal.ID, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to grant permission")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(grant)
	}
}

// loadAndAuthorize fetches the calendar and runs the access check, writing
// the error response itself when the caller may not proceed.
func loadAndAuthorize(w http.ResponseWriter, r *http.Request, permissions *storage.PermissionRepository, checker *access.Checker, calendarID string, manage bool) (*models.Calendar, bool) {
	cal, err := permissions.GetCalendar(r.Context(), calendarID)
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load calendar")
		return nil, false
	}
	if cal == nil {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar not found")
		return nil, false
	}

	user := userFromRequest(r)
	var ok bool
	if manage {
		ok, err = checker.CanManageCalendar(r.Context(), user, cal)
	} else {
		ok, err = checker.CanAccessCalendar(r.Context(), user, cal)
	}
	if err != nil {
		// Fail closed: an access check that cannot be evaluated denies.
		log.Printf("Access check failed for calendar %s: %v", calendarID, err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Access check failed")
		return nil, false
	}
	if !ok {
		middleware.WriteError(w, http.StatusForbidden, middleware.ErrForbidden, "You do not have access to this calendar")
		return nil, false
	}
	return cal, true
}

// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/church-connect/backend/internal/access"
	"github.com/church-connect/backend/internal/api/handlers"
	"github.com/church-connect/backend/internal/api/middleware"
	"github.com/church-connect/backend/internal/availability"
	"github.com/church-connect/backend/internal/provider"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/sync"
	"github.com/church-connect/backend/internal/websocket"
)

// Deps bundles the services the router wires into handlers.
type Deps struct {
	DB           *storage.DB
	Connections  *storage.ConnectionRepository
	Events       *storage.EventRepository
	States       *storage.StateRepository
	Permissions  *storage.PermissionRepository
	Engine       *availability.Engine
	Checker      *access.Checker
	Orchestrator *sync.Orchestrator
	Scheduler    *sync.Scheduler
	Hub          *websocket.Hub
	Apple        *provider.AppleProvider
	OAuth        handlers.OAuthConfigs

	// SyncSecret protects the cron trigger endpoint.
	SyncSecret string
	StaticDir  string
	// Cascade governs events when a connection is deleted.
	Cascade storage.CascadePolicy
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(deps.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(deps.DB, deps.Hub, deps.Scheduler)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(deps.Hub)).Methods("GET")

	// Cron-triggered batch sync, guarded by the shared secret
	syncRoute := api.PathPrefix("/sync").Subrouter()
	syncRoute.Use(middleware.RequireSyncSecret(deps.SyncSecret))
	syncRoute.HandleFunc("", handlers.RunSync(deps.Orchestrator)).Methods("GET", "POST")

	// OAuth flows for Google and Microsoft
	api.HandleFunc("/oauth/{provider}/connect", handlers.OAuthConnect(deps.OAuth, deps.States)).Methods("GET")
	api.HandleFunc("/oauth/{provider}/callback", handlers.OAuthCallback(deps.OAuth, deps.States, deps.Connections)).Methods("GET")

	// Connection endpoints
	api.HandleFunc("/connections", handlers.ListConnections(deps.Connections)).Methods("GET")
	api.HandleFunc("/connections/apple", handlers.CreateAppleConnection(deps.Apple, deps.Connections)).Methods("POST")
	api.HandleFunc("/connections/{id}", handlers.DeleteConnection(deps.Connections, deps.Events, deps.Cascade)).Methods("DELETE")
	api.HandleFunc("/connections/{id}/pause", handlers.PauseConnection(deps.Connections)).Methods("POST")
	api.HandleFunc("/connections/{id}/resume", handlers.ResumeConnection(deps.Connections)).Methods("POST")
	api.HandleFunc("/connections/{id}/sync", handlers.TriggerSync(deps.Orchestrator)).Methods("POST")

	// Availability and conflicts
	api.HandleFunc("/availability", handlers.GetAvailability(deps.Engine)).Methods("GET")
	api.HandleFunc("/availability", handlers.CreateAvailability(deps.Engine)).Methods("POST")
	api.HandleFunc("/conflicts/{id}/resolve", handlers.ResolveConflict(deps.Engine)).Methods("POST")

	// Calendars and permission grants
	api.HandleFunc("/calendars", handlers.CreateCalendar(deps.Permissions)).Methods("POST")
	api.HandleFunc("/calendars/{id}/permissions", handlers.ListPermissions(deps.Permissions, deps.Checker)).Methods("GET")
	api.HandleFunc("/calendars/{id}/permissions", handlers.GrantPermission(deps.Permissions, deps.Checker)).Methods("POST")

	// Serve static frontend files
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(deps.StaticDir)))

	return r
}

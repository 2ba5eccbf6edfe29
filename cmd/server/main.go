// Package main is the entry point for the calendar sync backend.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/church-connect/backend/internal/access"
	"github.com/church-connect/backend/internal/api"
	"github.com/church-connect/backend/internal/api/handlers"
	"github.com/church-connect/backend/internal/availability"
	"github.com/church-connect/backend/internal/config"
	"github.com/church-connect/backend/internal/provider"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
	"github.com/church-connect/backend/internal/sync"
	"github.com/church-connect/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	cfg := config.Load()

	// Health check mode for Docker HEALTHCHECK
	if cfg.HealthCheck {
		if err := runHealthCheck(cfg.Addr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Printf("Starting calendar sync backend (version: %s)...", version)

	// Initialize database
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory %q: %v", cfg.DataDir, err)
	}
	db, err := storage.NewDB(cfg.DataDir + "/church-connect.db")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := storage.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations complete")

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize repositories
	connectionRepo := storage.NewConnectionRepository(db)
	eventRepo := storage.NewEventRepository(db)
	availabilityRepo := storage.NewAvailabilityRepository(db)
	permissionRepo := storage.NewPermissionRepository(db)
	stateRepo := storage.NewStateRepository(db)

	// Initialize providers
	google := provider.NewGoogle(
		cfg.GoogleClientID, cfg.GoogleClientSecret,
		cfg.RedirectURL(models.ProviderGoogle), connectionRepo)
	microsoft := provider.NewMicrosoft(
		cfg.MicrosoftClientID, cfg.MicrosoftClientSecret,
		cfg.RedirectURL(models.ProviderMicrosoft), connectionRepo)
	apple := provider.NewApple()
	registry := provider.NewRegistry(google, microsoft, apple)

	// Initialize services
	engine := availability.NewEngine(availabilityRepo, eventRepo)
	checker := access.NewChecker(permissionRepo)
	broadcaster := websocket.NewEventBroadcaster(hub)

	orchestrator := sync.NewOrchestrator(
		connectionRepo, eventRepo, engine, registry, broadcaster,
		sync.Options{
			Staleness:          cfg.StalenessWindow,
			LookbackDays:       cfg.LookbackDays,
			LookaheadDays:      cfg.LookaheadDays,
			Concurrency:        cfg.SyncConcurrency,
			ConnectionTimeout:  cfg.ConnectionTimeout,
			PauseAfterFailures: cfg.PauseAfterFailures,
		})

	scheduler := sync.NewScheduler(orchestrator, cfg.SchedulerInterval)
	if err := scheduler.Start(); err != nil {
		log.Printf("Warning: Failed to start sync scheduler: %v", err)
	}

	// Initialize HTTP router
	router := api.NewRouter(api.Deps{
		DB:           db,
		Connections:  connectionRepo,
		Events:       eventRepo,
		States:       stateRepo,
		Permissions:  permissionRepo,
		Engine:       engine,
		Checker:      checker,
		Orchestrator: orchestrator,
		Scheduler:    scheduler,
		Hub:          hub,
		Apple:        apple,
		OAuth: handlers.OAuthConfigs{
			models.ProviderGoogle:    google.OAuthConfig(),
			models.ProviderMicrosoft: microsoft.OAuthConfig(),
		},
		SyncSecret: cfg.SyncSecret,
		StaticDir:  cfg.StaticDir,
		Cascade:    storage.CascadePolicy(cfg.CascadePolicy),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("Server listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	scheduler.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return http.ErrAbortHandler
	}
	return nil
}

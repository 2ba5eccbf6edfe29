// Package config collects the server's runtime settings from flags with
// environment fallback.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings for the server.
type Config struct {
	Addr      string
	DataDir   string
	StaticDir string

	// SyncSecret protects the cron-triggered /api/sync endpoint.
	SyncSecret string

	// Sync behavior.
	StalenessWindow    time.Duration
	SchedulerInterval  time.Duration
	LookbackDays       int
	LookaheadDays      int
	SyncConcurrency    int
	ConnectionTimeout  time.Duration
	PauseAfterFailures int
	CascadePolicy      string

	// OAuth application credentials.
	GoogleClientID        string
	GoogleClientSecret    string
	MicrosoftClientID     string
	MicrosoftClientSecret string
	// RedirectBase is the externally visible base URL for OAuth callbacks,
	// e.g. "https://example.org".
	RedirectBase string

	// HealthCheck makes the binary probe a running server and exit,
	// for Docker HEALTHCHECK.
	HealthCheck bool
}

// Load parses flags, layering environment variables underneath so
// container deployments can configure without a command line.
func Load() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Addr, "addr", envString("ADDR", ":8090"), "HTTP server address")
	flag.StringVar(&cfg.DataDir, "data", envString("DATA_DIR", "/data"), "Data directory for SQLite database")
	flag.StringVar(&cfg.StaticDir, "static", envString("STATIC_DIR", "./static"), "Directory for static frontend files")
	flag.StringVar(&cfg.SyncSecret, "sync-secret", os.Getenv("SYNC_SECRET"), "Bearer secret for the cron sync endpoint")

	flag.DurationVar(&cfg.StalenessWindow, "staleness", envDuration("SYNC_STALENESS", 15*time.Minute), "Minimum age before a connection is re-synced")
	flag.DurationVar(&cfg.SchedulerInterval, "sync-interval", envDuration("SYNC_INTERVAL", 5*time.Minute), "How often the scheduler checks for due connections")
	flag.IntVar(&cfg.LookbackDays, "lookback-days", envInt("SYNC_LOOKBACK_DAYS", 30), "Days of past events to sync")
	flag.IntVar(&cfg.LookaheadDays, "lookahead-days", envInt("SYNC_LOOKAHEAD_DAYS", 90), "Days of future events to sync")
	flag.IntVar(&cfg.SyncConcurrency, "sync-concurrency", envInt("SYNC_CONCURRENCY", 4), "Max connections synced in parallel")
	flag.DurationVar(&cfg.ConnectionTimeout, "sync-timeout", envDuration("SYNC_TIMEOUT", 60*time.Second), "Per-connection provider call timeout")
	flag.IntVar(&cfg.PauseAfterFailures, "pause-after-failures", envInt("SYNC_PAUSE_AFTER_FAILURES", 5), "Consecutive failures before a connection is paused")
	flag.StringVar(&cfg.CascadePolicy, "cascade-policy", envString("CASCADE_POLICY", "orphan"), "Event handling for removed connections: orphan or delete")

	flag.StringVar(&cfg.GoogleClientID, "google-client-id", os.Getenv("GOOGLE_CLIENT_ID"), "Google OAuth client ID")
	flag.StringVar(&cfg.GoogleClientSecret, "google-client-secret", os.Getenv("GOOGLE_CLIENT_SECRET"), "Google OAuth client secret")
	flag.StringVar(&cfg.MicrosoftClientID, "microsoft-client-id", os.Getenv("MICROSOFT_CLIENT_ID"), "Microsoft OAuth client ID")
	flag.StringVar(&cfg.MicrosoftClientSecret, "microsoft-client-secret", os.Getenv("MICROSOFT_CLIENT_SECRET"), "Microsoft OAuth client secret")
	flag.StringVar(&cfg.RedirectBase, "redirect-base", envString("REDIRECT_BASE", "http://localhost:8090"), "External base URL for OAuth callbacks")

	flag.BoolVar(&cfg.HealthCheck, "health-check", false, "Run health check and exit")

	flag.Parse()
	return cfg
}

// RedirectURL returns the OAuth callback URL for a provider.
func (c *Config) RedirectURL(provider string) string {
	return fmt.Sprintf("%s/api/oauth/%s/callback", c.RedirectBase, provider)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

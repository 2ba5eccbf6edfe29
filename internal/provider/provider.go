// Package provider normalizes external calendar APIs (Google, Microsoft,
// Apple/CalDAV) into a common event representation.
package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/church-connect/backend/internal/storage/models"
)

// RemoteEvent is the normalized, transient representation of one event as
// returned by a provider. It is the unit reconciled into local storage.
type RemoteEvent struct {
	ExternalID     string
	Title          string
	Description    string
	StartTime      time.Time
	EndTime        time.Time
	AllDay         bool
	Location       string
	Attendees      []string
	RecurrenceRule string
	Status         string
}

// Provider lists a connection's remote events over a date range. Adapters
// receive the connection row on every call; tokens are never cached in
// process, so a refreshed token is always persisted before reuse.
type Provider interface {
	Name() string
	ListEvents(ctx context.Context, conn *models.SyncConnection, start, end time.Time) ([]RemoteEvent, error)
}

// TokenStore persists refreshed provider tokens back onto the connection
// row. Implemented by storage.ConnectionRepository.
type TokenStore interface {
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiry *time.Time) error
}

// AuthError indicates bad or expired credentials. The connection stays in
// error until the user re-links or a refresh succeeds on a later pass.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProviderError indicates a transient upstream failure. The connection is
// retried on its next due window.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// QuotaError indicates the provider rate-limited us; the caller must back
// off rather than retry immediately.
type QuotaError struct {
	Provider string
	Err      error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: rate limited: %v", e.Provider, e.Err)
}

func (e *QuotaError) Unwrap() error { return e.Err }

// classifyStatus maps an HTTP status from a provider API into the error
// taxonomy.
func classifyStatus(providerName string, status int, err error) error {
	switch {
	case status == 401 || status == 403:
		return &AuthError{Provider: providerName, Err: err}
	case status == 429:
		return &QuotaError{Provider: providerName, Err: err}
	default:
		return &ProviderError{Provider: providerName, Err: err}
	}
}

// Registry resolves adapters by the provider field of a connection.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the adapter for a provider name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return p, nil
}

// tokenFromConnection builds an oauth2 token from the persisted connection
// row. A past expiry forces the token source to refresh.
func tokenFromConnection(conn *models.SyncConnection) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  conn.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: conn.RefreshToken,
	}
	if conn.TokenExpiry != nil {
		tok.Expiry = *conn.TokenExpiry
	}
	return tok
}

// persistIfRefreshed writes the current token back to storage when the
// token source handed out a different access token than the stored one.
func persistIfRefreshed(ctx context.Context, store TokenStore, conn *models.SyncConnection, tok *oauth2.Token) error {
	if store == nil || tok.AccessToken == conn.AccessToken {
		return nil
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = conn.RefreshToken
	}

	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		e := tok.Expiry.UTC()
		expiry = &e
	}

	if err := store.UpdateTokens(ctx, conn.ID, tok.AccessToken, refresh, expiry); err != nil {
		return fmt.Errorf("persisting refreshed token: %w", err)
	}
	conn.AccessToken = tok.AccessToken
	conn.RefreshToken = refresh
	conn.TokenExpiry = expiry
	return nil
}

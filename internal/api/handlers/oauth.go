package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"github.com/church-connect/backend/internal/api/middleware"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

// stateTTL bounds how long a consent redirect may stay pending.
const stateTTL = 10 * time.Minute

// OAuthConfigs maps provider names to their OAuth application configs.
// Apple is absent: it uses app-specific passwords, not OAuth.
type OAuthConfigs map[string]*oauth2.Config

// OAuthConnect starts the authorization flow for {provider}. It issues a
// single-use state token and redirects the user to the consent screen.
func OAuthConnect(configs OAuthConfigs, states *storage.StateRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerName := mux.Vars(r)["provider"]
		conf, ok := configs[providerName]
		if !ok {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Unknown provider")
			return
		}

		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "user_id is required")
			return
		}

		state, err := states.Create(r.Context(), userID, providerName, stateTTL)
		if err != nil {
			log.Printf("Failed to create oauth state: %v", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to start authorization")
			return
		}

		// Offline access plus forced consent so a refresh token is issued
		// even on reconnects.
		url := conf.AuthCodeURL(state.State,
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"))
		http.Redirect(w, r, url, http.StatusFound)
	}
}

// OAuthCallback completes the authorization flow: it consumes the state
// token, exchanges the code, and creates or refreshes the sync connection.
func OAuthCallback(configs OAuthConfigs, states *storage.StateRepository, connections *storage.ConnectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerName := mux.Vars(r)["provider"]
		conf, ok := configs[providerName]
		if !ok {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Unknown provider")
			return
		}

		if errParam := r.URL.Query().Get("error"); errParam != "" {
			log.Printf("OAuth consent denied for %s: %s", providerName, errParam)
			http.Redirect(w, r, "/?sync=error", http.StatusFound)
			return
		}

		state, err := states.Consume(r.Context(), r.URL.Query().Get("state"), providerName)
		if err != nil {
			log.Printf("Failed to consume oauth state: %v", err)
			http.Redirect(w, r, "/?sync=error", http.StatusFound)
			return
		}
		if state == nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid or expired state")
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Missing authorization code")
			return
		}

		token, err := conf.Exchange(r.Context(), code)
		if err != nil {
			log.Printf("Code exchange failed for %s: %v", providerName, err)
			http.Redirect(w, r, "/?sync=error", http.StatusFound)
			return
		}

		if err := upsertConnection(r.Context(), connections, state.UserID, providerName, token); err != nil {
			log.Printf("Failed to store %s connection for user %s: %v", providerName, state.UserID, err)
			http.Redirect(w, r, "/?sync=error", http.StatusFound)
			return
		}

		log.Printf("Connected %s calendar for user %s", providerName, state.UserID)
		http.Redirect(w, r, "/?sync=connected", http.StatusFound)
	}
}

// upsertConnection reuses an existing connection for the same user and
// provider instead of creating duplicates, so reconnecting just refreshes
// credentials and reactivates sync.
func upsertConnection(ctx context.Context, connections *storage.ConnectionRepository, userID, providerName string, token *oauth2.Token) error {
	existing, err := connections.GetByUserProvider(ctx, userID, providerName)
	if err != nil {
		return err
	}

	var expiry *time.Time
	if !token.Expiry.IsZero() {
		e := token.Expiry.UTC()
		expiry = &e
	}

	if existing != nil {
		if err := connections.UpdateTokens(ctx, existing.ID, token.AccessToken, token.RefreshToken, expiry); err != nil {
			return err
		}
		return connections.SetStatus(ctx, existing.ID, models.SyncStatusActive)
	}

	conn := &models.SyncConnection{
		UserID:             userID,
		Provider:           providerName,
		AccessToken:        token.AccessToken,
		RefreshToken:       token.RefreshToken,
		TokenExpiry:        expiry,
		ProviderCalendarID: "primary",
		SyncDirection:      models.SyncDirectionPull,
		SyncFrequencyMin:   15,
		SyncStatus:         models.SyncStatusActive,
		IsPrimary:          true,
	}
	return connections.Create(ctx, conn)
}

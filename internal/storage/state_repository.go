package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/church-connect/backend/internal/storage/models"
)

// StateRepository persists single-use OAuth anti-forgery state tokens.
type StateRepository struct {
	BaseRepository
}

// NewStateRepository creates a new OAuth state repository.
func NewStateRepository(db *DB) *StateRepository {
	return &StateRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create persists a state token with the given time-to-live.
func (r *StateRepository) Create(ctx context.Context, userID, provider string, ttl time.Duration) (*models.OAuthState, error) {
	state := &models.OAuthState{
		State:     GenerateID(),
		UserID:    userID,
		Provider:  provider,
		CreatedAt: r.Now(),
	}
	state.ExpiresAt = state.CreatedAt.Add(ttl)

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO oauth_states (state, user_id, provider, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, state.State, state.UserID, state.Provider, state.ExpiresAt, state.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting oauth state: %w", err)
	}
	return state, nil
}

// Consume validates a state token and deletes it so it cannot be replayed.
// It returns nil when the token is unknown, already consumed, expired, or
// issued for a different provider.
func (r *StateRepository) Consume(ctx context.Context, state, provider string) (*models.OAuthState, error) {
	var found *models.OAuthState

	err := r.Transaction(func(tx *sql.Tx) error {
		s := &models.OAuthState{}
		err := tx.QueryRowContext(ctx, `
			SELECT state, user_id, provider, expires_at, created_at
			FROM oauth_states WHERE state = ?
		`, state).Scan(&s.State, &s.UserID, &s.Provider, &s.ExpiresAt, &s.CreatedAt)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("querying oauth state: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM oauth_states WHERE state = ?`, state); err != nil {
			return fmt.Errorf("deleting oauth state: %w", err)
		}

		if s.Provider != provider || s.Expired(time.Now().UTC()) {
			return nil
		}
		found = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// PurgeExpired removes state tokens past their expiry.
func (r *StateRepository) PurgeExpired(ctx context.Context) error {
	if _, err := r.DB().ExecContext(ctx,
		`DELETE FROM oauth_states WHERE expires_at <= ?`, r.Now()); err != nil {
		return fmt.Errorf("purging oauth states: %w", err)
	}
	return nil
}

package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/havenhomes/haven-backend/internal/models"
	"github.com/havenhomes/haven-backend/internal/repository"
	"github.com/havenhomes/haven-backend/internal/utils"
)

// SessionRegistry tracks active login sessions per account. Clearing all
// sessions after a password reset or change is the blast-radius containment
// measure: every other logged-in device is forced to re-authenticate.
type SessionRegistry struct {
	store repository.CredentialStore

	// maxPerAccount caps concurrent sessions; 0 means unbounded.
	maxPerAccount int
}

// NewSessionRegistry creates a SessionRegistry over the credential store.
func NewSessionRegistry(store repository.CredentialStore, maxPerAccount int) *SessionRegistry {
	return &SessionRegistry{
		store:         store,
		maxPerAccount: maxPerAccount,
	}
}

// AddSession appends a session for the account. When a cap is configured
// and reached, the oldest session is evicted first.
func (r *SessionRegistry) AddSession(ctx context.Context, accountID string, session models.SessionInfo) error {
	if r.maxPerAccount > 0 {
		record, err := r.store.GetByAccountID(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to load account for session cap: %w", err)
		}

		// Sessions are ordered oldest first.
		for len(record.ActiveSessions) >= r.maxPerAccount {
			oldest := record.ActiveSessions[0]
			if err := r.store.RemoveSession(ctx, accountID, oldest.SessionID); err != nil {
				return fmt.Errorf("failed to evict oldest session: %w", err)
			}
			record.ActiveSessions = record.ActiveSessions[1:]

			log.Info().
				Str("account_id", utils.MaskIdentifier(accountID)).
				Str("session_id", utils.MaskIdentifier(oldest.SessionID)).
				Msg("Evicted oldest session at cap")
		}
	}

	return r.store.AddSession(ctx, accountID, session)
}

// RemoveSession removes one session for the account.
func (r *SessionRegistry) RemoveSession(ctx context.Context, accountID, sessionID string) error {
	return r.store.RemoveSession(ctx, accountID, sessionID)
}

// ClearAll removes every session for the account.
func (r *SessionRegistry) ClearAll(ctx context.Context, accountID string) error {
	removed, err := r.store.ClearSessions(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}

	log.Info().
		Str("account_id", utils.MaskIdentifier(accountID)).
		Int64("sessions_removed", removed).
		Msg("Cleared all sessions")

	return nil
}

// ClearOthers removes every session for the account except the one given.
// Used after an authenticated password change so the changing device stays
// logged in.
func (r *SessionRegistry) ClearOthers(ctx context.Context, accountID, keepSessionID string) error {
	record, err := r.store.GetByAccountID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account sessions: %w", err)
	}

	for _, session := range record.ActiveSessions {
		if session.SessionID == keepSessionID {
			continue
		}
		if err := r.store.RemoveSession(ctx, accountID, session.SessionID); err != nil {
			return fmt.Errorf("failed to remove session: %w", err)
		}
	}

	return nil
}

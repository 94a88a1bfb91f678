package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/havenhomes/haven-backend/internal/constants"
	"github.com/havenhomes/haven-backend/internal/models"
	"github.com/havenhomes/haven-backend/internal/repository"
	"github.com/havenhomes/haven-backend/internal/utils"
)

// ResetTokenManager issues, validates and consumes single-use password
// reset tokens. Only the SHA-256 digest of a token is ever stored; the
// plaintext exists transiently in the issuance result and the notification
// payload.
type ResetTokenManager struct {
	store repository.CredentialStore
	ttl   time.Duration

	// now is injectable for expiry boundary tests.
	now func() time.Time
}

// NewResetTokenManager creates a ResetTokenManager with the given token TTL.
func NewResetTokenManager(store repository.CredentialStore, ttl time.Duration) *ResetTokenManager {
	if ttl <= 0 {
		ttl = constants.DefaultResetTokenTTL
	}
	return &ResetTokenManager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// GenerateToken generates a secure random token and its SHA-256 digest.
// It returns the plain token (to be sent to the user) and the digest (to
// be stored).
func GenerateToken() (string, string, error) {
	tokenBytes, err := GenerateRandomBytes(constants.ResetTokenBytes)
	if err != nil {
		return "", "", err
	}
	token := hex.EncodeToString(tokenBytes)

	return token, DigestToken(token), nil
}

// DigestToken returns the hex-encoded SHA-256 digest of a plaintext token.
func DigestToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// IssueToken generates a fresh token for the account, stores its digest and
// expiry on the credential record, and returns the plaintext exactly once.
// Any previously outstanding token is implicitly invalidated because the
// record holds at most one digest.
func (m *ResetTokenManager) IssueToken(ctx context.Context, record *models.CredentialRecord) (string, error) {
	token, digest, err := GenerateToken()
	if err != nil {
		return "", err
	}

	record.ResetTokenHash = digest
	record.ResetTokenExpiresAt = m.now().Add(m.ttl)
	record.ResetTokenUsed = false

	if err := m.store.ConditionalSave(ctx, record); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	log.Info().
		Str("account_id", utils.MaskIdentifier(record.AccountID)).
		Time("expires_at", record.ResetTokenExpiresAt).
		Msg("Password reset token issued")

	return token, nil
}

// Validate resolves a plaintext token to its credential record. The lookup
// goes through the digest index, then the stored digest is compared in
// constant time and the expiry and used-flag are checked. Every failure
// mode returns the same ErrInvalidOrExpiredToken.
func (m *ResetTokenManager) Validate(ctx context.Context, token string) (*models.CredentialRecord, error) {
	digest := DigestToken(token)

	record, err := m.store.GetByTokenDigest(ctx, digest)
	if err != nil {
		if utils.IsNotFoundError(err) {
			return nil, utils.NewInvalidOrExpiredTokenError()
		}
		return nil, fmt.Errorf("failed to look up reset token: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(digest), []byte(record.ResetTokenHash)) != 1 {
		return nil, utils.NewInvalidOrExpiredTokenError()
	}

	if record.ResetTokenUsed {
		log.Warn().
			Str("account_id", utils.MaskIdentifier(record.AccountID)).
			Msg("Replay of a consumed reset token")
		return nil, utils.NewInvalidOrExpiredTokenError()
	}

	if !m.now().Before(record.ResetTokenExpiresAt) {
		return nil, utils.NewInvalidOrExpiredTokenError()
	}

	return record, nil
}

// Consume marks the record's token as used and applies the new password
// hash in one conditional write. Exactly one of any number of concurrent
// consumers succeeds; the rest observe a version conflict, which surfaces
// as an invalid token.
func (m *ResetTokenManager) Consume(ctx context.Context, record *models.CredentialRecord, newPasswordHash string) error {
	if record.ResetTokenUsed {
		return utils.NewInvalidOrExpiredTokenError()
	}

	record.ResetTokenUsed = true
	record.PasswordHash = newPasswordHash
	record.LegacyHash = ""

	if err := m.store.ConditionalSave(ctx, record); err != nil {
		if utils.IsVersionConflict(err) {
			return utils.NewInvalidOrExpiredTokenError()
		}
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	return nil
}

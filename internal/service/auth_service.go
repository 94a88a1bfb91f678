package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/havenhomes/haven-backend/internal/auth"
	"github.com/havenhomes/haven-backend/internal/constants"
	"github.com/havenhomes/haven-backend/internal/models"
	"github.com/havenhomes/haven-backend/internal/passwordcheck"
	"github.com/havenhomes/haven-backend/internal/ratelimit"
	"github.com/havenhomes/haven-backend/internal/repository"
	"github.com/havenhomes/haven-backend/internal/utils"
)

// Latency envelope of the artificial delay inserted on the miss path of
// RequestReset, approximating the token-issue-and-persist path it replaces.
const (
	enumerationDelayBase   = 25 * time.Millisecond
	enumerationDelayJitter = 50 * time.Millisecond
)

// AuthService orchestrates the credential-security flows: login,
// forgot-password, reset-password and change-password. Every collaborator
// is injected at construction; nothing here reaches for ambient globals.
type AuthService struct {
	store          repository.CredentialStore
	hasher         *auth.PasswordHasher
	tokens         *auth.ResetTokenManager
	sessions       *SessionRegistry
	jwtService     *auth.JWTService
	outbox         *NotificationOutbox
	originLimiter  *ratelimit.Limiter
	accountLimiter *ratelimit.Limiter
	backoff        *ratelimit.Backoff

	clearOthersOnChange bool
	accountWindow       time.Duration

	// sleep and missDelay are injectable so tests run without waiting.
	sleep     func(ctx context.Context, d time.Duration)
	missDelay func() time.Duration
}

// NewAuthService creates the orchestrator. originLimiter and accountLimiter
// are the two independent keys every reset request is checked against.
func NewAuthService(
	store repository.CredentialStore,
	hasher *auth.PasswordHasher,
	tokens *auth.ResetTokenManager,
	sessions *SessionRegistry,
	jwtService *auth.JWTService,
	outbox *NotificationOutbox,
	originLimiter *ratelimit.Limiter,
	accountLimiter *ratelimit.Limiter,
	backoff *ratelimit.Backoff,
	clearOthersOnChange bool,
	accountWindow time.Duration,
) *AuthService {
	return &AuthService{
		store:               store,
		hasher:              hasher,
		tokens:              tokens,
		sessions:            sessions,
		jwtService:          jwtService,
		outbox:              outbox,
		originLimiter:       originLimiter,
		accountLimiter:      accountLimiter,
		backoff:             backoff,
		clearOthersOnChange: clearOthersOnChange,
		accountWindow:       accountWindow,
		sleep:               sleepCtx,
		missDelay: func() time.Duration {
			return enumerationDelayBase + time.Duration(rand.Int63n(int64(enumerationDelayJitter)))
		},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Login verifies credentials, migrates legacy hashes, registers a session
// and returns the sanitized record with a signed access token.
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest, originAddress, clientAgent string) (*models.CredentialRecord, string, error) {
	record, err := s.store.GetByEmail(ctx, strings.ToLower(req.Email))
	if err != nil {
		if utils.IsNotFoundError(err) {
			utils.LogAuth("login_failed", "", req.Email, false, "account not found")
			return nil, "", utils.NewInvalidCredentialsError()
		}
		return nil, "", fmt.Errorf("failed to load account: %w", err)
	}

	if !record.Active {
		utils.LogAuth("login_failed", record.AccountID, record.Email, false, "account inactive")
		return nil, "", utils.NewInvalidCredentialsError()
	}

	matched, needsMigration := s.hasher.Verify(req.Password, record.PasswordHash)
	if !matched {
		utils.LogAuth("login_failed", record.AccountID, record.Email, false, "invalid password")
		return nil, "", utils.NewInvalidCredentialsError()
	}

	if needsMigration {
		// The legacy hash verified; rehash with the preferred algorithm
		// and persist before this login is allowed to succeed.
		if err := s.migrateHash(ctx, record, req.Password); err != nil {
			return nil, "", err
		}
	}

	session := models.NewSessionInfo(uuid.NewString(), originAddress, clientAgent)
	if err := s.sessions.AddSession(ctx, record.AccountID, session); err != nil {
		return nil, "", fmt.Errorf("failed to register session: %w", err)
	}
	record.ActiveSessions = append(record.ActiveSessions, session)

	accessToken, _, err := s.jwtService.GenerateAccessToken(record.AccountID, record.Email, session.SessionID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate access token: %w", err)
	}

	utils.LogAuth("login_success", record.AccountID, record.Email, true, "")

	return record.Sanitize(), accessToken, nil
}

// migrateHash rehashes a legacy-verified password with the preferred
// algorithm and clears the write-once legacy artifact.
func (s *AuthService) migrateHash(ctx context.Context, record *models.CredentialRecord, password string) error {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	record.PasswordHash = newHash
	record.LegacyHash = ""

	if err := s.store.ConditionalSave(ctx, record); err != nil {
		return fmt.Errorf("failed to persist hash migration: %w", err)
	}

	log.Info().
		Str("account_id", utils.MaskIdentifier(record.AccountID)).
		Msg("Migrated legacy password hash")

	return nil
}

// RequestReset initiates a password reset. Whatever happens internally —
// unknown account, inactive account, throttled request, store failure —
// the caller gets the identical generic message, and the miss paths carry
// an artificial delay so their latency resembles the issue path.
func (s *AuthService) RequestReset(ctx context.Context, email, originAddress string) string {
	email = strings.ToLower(email)
	originKey := constants.RateLimitKeyOrigin + originAddress
	accountKey := constants.RateLimitKeyAccount + email

	originResult, originErr := s.originLimiter.CheckAndRecord(ctx, originKey)
	accountResult, accountErr := s.accountLimiter.CheckAndRecord(ctx, accountKey)

	// An unreachable backend denies (fail closed); the caller still sees
	// the generic message.
	if originErr != nil || accountErr != nil {
		log.Error().
			AnErr("origin_err", originErr).
			AnErr("account_err", accountErr).
			Msg("Rate limit backend unavailable, denying reset request")
		s.sleep(ctx, s.backoff.Next(originKey))
		return constants.GenericResetMessage
	}

	if !originResult.Allowed || !accountResult.Allowed {
		log.Warn().
			Str("email", utils.MaskEmail(email)).
			Str("origin", originAddress).
			Int("origin_count", originResult.Count).
			Int("account_count", accountResult.Count).
			Time("reset_at", originResult.ResetAt).
			Msg("Password reset request throttled")
		s.sleep(ctx, s.backoff.Next(originKey))
		return constants.GenericResetMessage
	}

	s.backoff.Reset(originKey)

	record, err := s.store.GetByEmail(ctx, email)
	if err != nil || !record.Active {
		if err != nil && !utils.IsNotFoundError(err) {
			log.Error().Err(err).Msg("Failed to load account for reset request")
		} else {
			utils.LogAuth("reset_requested", "", email, false, "account unknown or inactive")
		}
		s.sleep(ctx, s.missDelay())
		return constants.GenericResetMessage
	}

	s.recordResetRequest(record)

	token, err := s.tokens.IssueToken(ctx, record)
	if err != nil {
		log.Error().Err(err).
			Str("account_id", utils.MaskIdentifier(record.AccountID)).
			Msg("Failed to issue reset token")
		return constants.GenericResetMessage
	}

	s.outbox.EnqueuePasswordReset(record.Email, record.Name, token)

	utils.LogAuth("reset_requested", record.AccountID, record.Email, true, "")

	return constants.GenericResetMessage
}

// recordResetRequest maintains the record's local throttling aid: a
// counter of reset requests in the current account window. The fields ride
// along in the IssueToken save.
func (s *AuthService) recordResetRequest(record *models.CredentialRecord) {
	now := time.Now()
	if s.accountWindow > 0 && now.Sub(record.LastResetRequestAt) > s.accountWindow {
		record.FailedResetRequests = 0
	}
	record.FailedResetRequests++
	record.LastResetRequestAt = now
}

// ResetPassword completes a reset: validates the token, checks the new
// password's strength, then consumes the token and applies the new hash in
// one conditional write before clearing every session.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	record, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return err
	}

	result := passwordcheck.Validate(newPassword, &passwordcheck.AccountContext{
		Name:  record.Name,
		Email: record.Email,
		Phone: record.Phone,
	})
	if !result.Valid {
		// The token already proves possession of the mailbox, so this
		// response can be specific.
		return utils.NewWeakPasswordError(result.FailedRules, result.Score)
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.tokens.Consume(ctx, record, newHash); err != nil {
		return err
	}

	if err := s.sessions.ClearAll(ctx, record.AccountID); err != nil {
		// The password is already changed; losing the session purge is
		// logged, not surfaced.
		log.Error().Err(err).
			Str("account_id", utils.MaskIdentifier(record.AccountID)).
			Msg("Failed to clear sessions after reset")
	}

	utils.LogAuth("password_reset", record.AccountID, record.Email, true, "")

	return nil
}

// ChangePassword handles an authenticated password change. The session
// performing the change survives; others are cleared when configured.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, sessionID string, req *models.ChangePasswordRequest) error {
	record, err := s.store.GetByAccountID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	matched, _ := s.hasher.Verify(req.CurrentPassword, record.PasswordHash)
	if !matched {
		utils.LogAuth("password_change", record.AccountID, record.Email, false, "invalid current password")
		return utils.NewInvalidCurrentPasswordError()
	}

	// The new password must not verify against the current hash. Checked
	// before any write so a rejected request has no side effects.
	if sameAsCurrent, _ := s.hasher.Verify(req.NewPassword, record.PasswordHash); sameAsCurrent {
		return utils.NewSameAsCurrentPasswordError()
	}

	result := passwordcheck.Validate(req.NewPassword, &passwordcheck.AccountContext{
		Name:  record.Name,
		Email: record.Email,
		Phone: record.Phone,
	})
	if !result.Valid {
		return utils.NewWeakPasswordError(result.FailedRules, result.Score)
	}

	newHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}

	record.PasswordHash = newHash
	record.LegacyHash = ""

	if err := s.store.ConditionalSave(ctx, record); err != nil {
		return fmt.Errorf("failed to save new password: %w", err)
	}

	if s.clearOthersOnChange {
		if err := s.sessions.ClearOthers(ctx, record.AccountID, sessionID); err != nil {
			log.Error().Err(err).
				Str("account_id", utils.MaskIdentifier(record.AccountID)).
				Msg("Failed to clear other sessions after password change")
		}
	}

	utils.LogAuth("password_change", record.AccountID, record.Email, true, "")

	return nil
}

// ValidateTokenPreflight reports whether a reset token would currently be
// accepted. It reveals validity only, never the account the token belongs
// to.
func (s *AuthService) ValidateTokenPreflight(ctx context.Context, token string) models.TokenPreflightResult {
	_, err := s.tokens.Validate(ctx, token)
	return models.TokenPreflightResult{Valid: err == nil}
}

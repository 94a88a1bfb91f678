package models

import (
	"time"
)

// CredentialRecord holds everything the auth subsystem persists for one
// account. It is owned exclusively by this subsystem; other parts of the
// application treat it as opaque.
type CredentialRecord struct {
	// AccountID is an opaque, immutable account identifier.
	AccountID string `json:"account_id" db:"account_id"`

	// Email is the identity the account authenticates with.
	Email string `json:"email" db:"email"`

	// Name is the display name, used for personal-info password checks
	// and notification salutations.
	Name string `json:"name" db:"name"`

	// Phone is optional, used for personal-info password checks.
	Phone string `json:"phone,omitempty" db:"phone"`

	// Active indicates whether the account may authenticate or reset.
	Active bool `json:"active" db:"active"`

	// PasswordHash is the tagged hash string (algorithm, parameters and
	// digest). Never the plaintext.
	PasswordHash string `json:"-" db:"password_hash"`

	// LegacyHash is present only until the first successful migration to
	// the preferred algorithm, then cleared for good.
	LegacyHash string `json:"-" db:"legacy_hash"`

	// ResetTokenHash is the SHA-256 digest of the outstanding reset
	// token; empty when no reset is pending.
	ResetTokenHash string `json:"-" db:"reset_token_hash"`

	// ResetTokenExpiresAt is the absolute expiry of the outstanding
	// token; zero when no reset is pending.
	ResetTokenExpiresAt time.Time `json:"-" db:"reset_token_expires_at"`

	// ResetTokenUsed is set once the token is consumed, after which the
	// token is permanently invalid.
	ResetTokenUsed bool `json:"-" db:"reset_token_used"`

	// FailedResetRequests and LastResetRequestAt are a local throttling
	// aid, reset once the window elapses.
	FailedResetRequests int       `json:"-" db:"failed_reset_requests"`
	LastResetRequestAt  time.Time `json:"-" db:"last_reset_request_at"`

	// ActiveSessions lists the account's live login sessions, oldest
	// first.
	ActiveSessions []SessionInfo `json:"active_sessions" db:"-"`

	// Version drives conditional writes: ConditionalSave succeeds only
	// if the stored version still matches.
	Version int64 `json:"-" db:"record_version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewCredentialRecord creates a credential record for a fresh account.
// The password hash is set by the caller after hashing.
func NewCredentialRecord(accountID, email, name string) *CredentialRecord {
	now := time.Now()
	return &CredentialRecord{
		AccountID: accountID,
		Email:     email,
		Name:      name,
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasPendingReset reports whether an unexpired, unused reset token is
// outstanding at the given time.
func (c *CredentialRecord) HasPendingReset(now time.Time) bool {
	return c.ResetTokenHash != "" && !c.ResetTokenUsed && now.Before(c.ResetTokenExpiresAt)
}

// ClearResetToken returns the record to the no-pending-token state.
func (c *CredentialRecord) ClearResetToken() {
	c.ResetTokenHash = ""
	c.ResetTokenExpiresAt = time.Time{}
	c.ResetTokenUsed = false
}

// Sanitize removes credential material before the record is returned to a
// client or serialized into a response.
func (c *CredentialRecord) Sanitize() *CredentialRecord {
	sanitized := *c
	sanitized.PasswordHash = ""
	sanitized.LegacyHash = ""
	sanitized.ResetTokenHash = ""
	return &sanitized
}

// SessionInfo describes one active login session.
type SessionInfo struct {
	SessionID      string    `json:"session_id" db:"session_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at" db:"last_accessed_at"`
	OriginAddress  string    `json:"origin_address" db:"origin_address"`
	ClientAgent    string    `json:"client_agent" db:"client_agent"`
}

// NewSessionInfo creates session metadata for a fresh login.
func NewSessionInfo(sessionID, originAddress, clientAgent string) SessionInfo {
	now := time.Now()
	return SessionInfo{
		SessionID:      sessionID,
		CreatedAt:      now,
		LastAccessedAt: now,
		OriginAddress:  originAddress,
		ClientAgent:    clientAgent,
	}
}

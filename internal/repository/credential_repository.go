package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/havenhomes/haven-backend/internal/constants"
	"github.com/havenhomes/haven-backend/internal/database"
	"github.com/havenhomes/haven-backend/internal/models"
	"github.com/havenhomes/haven-backend/internal/utils"
)

// CredentialStore is the persistence contract the auth subsystem depends
// on. ConditionalSave is an optimistic-concurrency write: it succeeds only
// if the record's version is unchanged since it was read, and bumps the
// version on success.
type CredentialStore interface {
	GetByEmail(ctx context.Context, email string) (*models.CredentialRecord, error)
	GetByAccountID(ctx context.Context, accountID string) (*models.CredentialRecord, error)
	GetByTokenDigest(ctx context.Context, digest string) (*models.CredentialRecord, error)
	Create(ctx context.Context, record *models.CredentialRecord) error
	ConditionalSave(ctx context.Context, record *models.CredentialRecord) error

	AddSession(ctx context.Context, accountID string, session models.SessionInfo) error
	RemoveSession(ctx context.Context, accountID, sessionID string) error
	ClearSessions(ctx context.Context, accountID string) (int64, error)

	// CleanupExpired clears spent or expired reset token state and removes
	// sessions idle longer than sessionMaxIdle. It returns how many rows of
	// each were touched.
	CleanupExpired(ctx context.Context, sessionMaxIdle time.Duration) (tokens, sessions int64, err error)
}

// CredentialRepository is the MySQL implementation of CredentialStore.
type CredentialRepository struct {
	db *database.Pool
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db *database.Pool) *CredentialRepository {
	return &CredentialRepository{db: db}
}

const credentialColumns = `account_id, email, name, phone, active, password_hash, legacy_hash,
	reset_token_hash, reset_token_expires_at, reset_token_used,
	failed_reset_requests, last_reset_request_at, record_version, created_at, updated_at`

// GetByEmail retrieves a credential record by its email identity.
func (r *CredentialRepository) GetByEmail(ctx context.Context, email string) (*models.CredentialRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE email = ?", credentialColumns, constants.TableCredentials)
	return r.queryRecord(ctx, query, email)
}

// GetByAccountID retrieves a credential record by account ID.
func (r *CredentialRepository) GetByAccountID(ctx context.Context, accountID string) (*models.CredentialRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE account_id = ?", credentialColumns, constants.TableCredentials)
	return r.queryRecord(ctx, query, accountID)
}

// GetByTokenDigest retrieves the credential record holding the given reset
// token digest. The digest column is indexed, so this is a point lookup,
// not a scan.
func (r *CredentialRepository) GetByTokenDigest(ctx context.Context, digest string) (*models.CredentialRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE reset_token_hash = ?", credentialColumns, constants.TableCredentials)
	return r.queryRecord(ctx, query, digest)
}

func (r *CredentialRepository) queryRecord(ctx context.Context, query string, arg interface{}) (*models.CredentialRecord, error) {
	record := &models.CredentialRecord{}
	var legacyHash, resetTokenHash sql.NullString
	var resetExpires, lastResetRequest sql.NullTime

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&record.AccountID,
		&record.Email,
		&record.Name,
		&record.Phone,
		&record.Active,
		&record.PasswordHash,
		&legacyHash,
		&resetTokenHash,
		&resetExpires,
		&record.ResetTokenUsed,
		&record.FailedResetRequests,
		&lastResetRequest,
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewNotFoundError("Credential record", arg)
		}
		return nil, fmt.Errorf("failed to query credential record: %w", err)
	}

	record.LegacyHash = legacyHash.String
	record.ResetTokenHash = resetTokenHash.String
	if resetExpires.Valid {
		record.ResetTokenExpiresAt = resetExpires.Time
	}
	if lastResetRequest.Valid {
		record.LastResetRequestAt = lastResetRequest.Time
	}

	sessions, err := r.listSessions(ctx, record.AccountID)
	if err != nil {
		return nil, err
	}
	record.ActiveSessions = sessions

	return record, nil
}

// Create inserts a fresh credential record.
func (r *CredentialRepository) Create(ctx context.Context, record *models.CredentialRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, constants.TableCredentials, credentialColumns)

	_, err := r.db.ExecContext(ctx, query,
		record.AccountID,
		record.Email,
		record.Name,
		record.Phone,
		record.Active,
		record.PasswordHash,
		nullString(record.LegacyHash),
		nullString(record.ResetTokenHash),
		nullTime(record.ResetTokenExpiresAt),
		record.ResetTokenUsed,
		record.FailedResetRequests,
		nullTime(record.LastResetRequestAt),
		record.Version,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create credential record: %w", err)
	}
	return nil
}

// ConditionalSave writes the record only if its stored version still
// matches the version it was read at. On success the in-memory version is
// bumped alongside the row; a conflict returns ErrVersionConflict and the
// record is left untouched in the store.
func (r *CredentialRepository) ConditionalSave(ctx context.Context, record *models.CredentialRecord) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET email = ?, name = ?, phone = ?, active = ?, password_hash = ?, legacy_hash = ?,
			reset_token_hash = ?, reset_token_expires_at = ?, reset_token_used = ?,
			failed_reset_requests = ?, last_reset_request_at = ?,
			record_version = record_version + 1, updated_at = ?
		WHERE account_id = ? AND record_version = ?
	`, constants.TableCredentials)

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		record.Email,
		record.Name,
		record.Phone,
		record.Active,
		record.PasswordHash,
		nullString(record.LegacyHash),
		nullString(record.ResetTokenHash),
		nullTime(record.ResetTokenExpiresAt),
		record.ResetTokenUsed,
		record.FailedResetRequests,
		nullTime(record.LastResetRequestAt),
		now,
		record.AccountID,
		record.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return utils.ErrVersionConflict
	}

	record.Version++
	record.UpdatedAt = now
	return nil
}

// AddSession appends a session row for the account.
func (r *CredentialRepository) AddSession(ctx context.Context, accountID string, session models.SessionInfo) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (session_id, account_id, created_at, last_accessed_at, origin_address, client_agent)
		VALUES (?, ?, ?, ?, ?, ?)
	`, constants.TableSessions)

	_, err := r.db.ExecContext(ctx, query,
		session.SessionID,
		accountID,
		session.CreatedAt,
		session.LastAccessedAt,
		session.OriginAddress,
		session.ClientAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to add session: %w", err)
	}
	return nil
}

// RemoveSession deletes one session. Removing an already-removed session is
// not an error.
func (r *CredentialRepository) RemoveSession(ctx context.Context, accountID, sessionID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE account_id = ? AND session_id = ?", constants.TableSessions)
	if _, err := r.db.ExecContext(ctx, query, accountID, sessionID); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// ClearSessions deletes every session for the account and returns how many
// were removed.
func (r *CredentialRepository) ClearSessions(ctx context.Context, accountID string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE account_id = ?", constants.TableSessions)
	result, err := r.db.ExecContext(ctx, query, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear sessions: %w", err)
	}
	return result.RowsAffected()
}

// CleanupExpired clears token state that can never validate again and
// deletes idle sessions. Token rows are cleared rather than deleted so the
// credential record itself is untouched.
func (r *CredentialRepository) CleanupExpired(ctx context.Context, sessionMaxIdle time.Duration) (int64, int64, error) {
	now := time.Now()

	tokenQuery := fmt.Sprintf(`
		UPDATE %s
		SET reset_token_hash = NULL, reset_token_expires_at = NULL, reset_token_used = FALSE,
			record_version = record_version + 1
		WHERE reset_token_hash IS NOT NULL AND (reset_token_used = TRUE OR reset_token_expires_at <= ?)
	`, constants.TableCredentials)

	tokenResult, err := r.db.ExecContext(ctx, tokenQuery, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clean up reset tokens: %w", err)
	}
	tokens, err := tokenResult.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	sessionQuery := fmt.Sprintf("DELETE FROM %s WHERE last_accessed_at <= ?", constants.TableSessions)
	sessionResult, err := r.db.ExecContext(ctx, sessionQuery, now.Add(-sessionMaxIdle))
	if err != nil {
		return tokens, 0, fmt.Errorf("failed to clean up idle sessions: %w", err)
	}
	sessions, err := sessionResult.RowsAffected()
	if err != nil {
		return tokens, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return tokens, sessions, nil
}

func (r *CredentialRepository) listSessions(ctx context.Context, accountID string) ([]models.SessionInfo, error) {
	query := fmt.Sprintf(`
		SELECT session_id, created_at, last_accessed_at, origin_address, client_agent
		FROM %s WHERE account_id = ? ORDER BY created_at ASC
	`, constants.TableSessions)

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SessionInfo
	for rows.Next() {
		var s models.SessionInfo
		if err := rows.Scan(&s.SessionID, &s.CreatedAt, &s.LastAccessedAt, &s.OriginAddress, &s.ClientAgent); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

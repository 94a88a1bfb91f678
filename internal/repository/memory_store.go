package repository

import (
	"context"
	"sync"
	"time"

	"github.com/havenhomes/haven-backend/internal/models"
	"github.com/havenhomes/haven-backend/internal/utils"
)

// MemoryCredentialStore is an in-memory CredentialStore used by tests and
// local development. Its ConditionalSave honors the same version semantics
// as the MySQL repository, including under concurrent callers.
type MemoryCredentialStore struct {
	mu      sync.Mutex
	records map[string]*models.CredentialRecord // by account ID
}

// NewMemoryCredentialStore creates an empty in-memory store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		records: make(map[string]*models.CredentialRecord),
	}
}

// GetByEmail implements CredentialStore.
func (s *MemoryCredentialStore) GetByEmail(_ context.Context, email string) (*models.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.Email == email {
			return copyRecord(record), nil
		}
	}
	return nil, utils.NewNotFoundError("Credential record", email)
}

// GetByAccountID implements CredentialStore.
func (s *MemoryCredentialStore) GetByAccountID(_ context.Context, accountID string) (*models.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[accountID]
	if !ok {
		return nil, utils.NewNotFoundError("Credential record", accountID)
	}
	return copyRecord(record), nil
}

// GetByTokenDigest implements CredentialStore.
func (s *MemoryCredentialStore) GetByTokenDigest(_ context.Context, digest string) (*models.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.ResetTokenHash != "" && record.ResetTokenHash == digest {
			return copyRecord(record), nil
		}
	}
	return nil, utils.NewNotFoundError("Credential record", "token digest")
}

// Create implements CredentialStore.
func (s *MemoryCredentialStore) Create(_ context.Context, record *models.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.AccountID] = copyRecord(record)
	return nil
}

// ConditionalSave implements CredentialStore.
func (s *MemoryCredentialStore) ConditionalSave(_ context.Context, record *models.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[record.AccountID]
	if !ok {
		return utils.NewNotFoundError("Credential record", record.AccountID)
	}
	if stored.Version != record.Version {
		return utils.ErrVersionConflict
	}

	saved := copyRecord(record)
	saved.Version++
	saved.ActiveSessions = stored.ActiveSessions
	s.records[record.AccountID] = saved

	record.Version++
	return nil
}

// AddSession implements CredentialStore.
func (s *MemoryCredentialStore) AddSession(_ context.Context, accountID string, session models.SessionInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[accountID]
	if !ok {
		return utils.NewNotFoundError("Credential record", accountID)
	}
	record.ActiveSessions = append(record.ActiveSessions, session)
	return nil
}

// RemoveSession implements CredentialStore.
func (s *MemoryCredentialStore) RemoveSession(_ context.Context, accountID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[accountID]
	if !ok {
		return utils.NewNotFoundError("Credential record", accountID)
	}

	kept := record.ActiveSessions[:0]
	for _, session := range record.ActiveSessions {
		if session.SessionID != sessionID {
			kept = append(kept, session)
		}
	}
	record.ActiveSessions = kept
	return nil
}

// ClearSessions implements CredentialStore.
func (s *MemoryCredentialStore) ClearSessions(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[accountID]
	if !ok {
		return 0, utils.NewNotFoundError("Credential record", accountID)
	}

	removed := int64(len(record.ActiveSessions))
	record.ActiveSessions = nil
	return removed, nil
}

// CleanupExpired implements CredentialStore.
func (s *MemoryCredentialStore) CleanupExpired(_ context.Context, sessionMaxIdle time.Duration) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	idleCutoff := now.Add(-sessionMaxIdle)

	var tokens, sessions int64
	for _, record := range s.records {
		if record.ResetTokenHash != "" && !record.HasPendingReset(now) {
			record.ClearResetToken()
			record.Version++
			tokens++
		}

		kept := record.ActiveSessions[:0]
		for _, session := range record.ActiveSessions {
			if session.LastAccessedAt.After(idleCutoff) {
				kept = append(kept, session)
			} else {
				sessions++
			}
		}
		record.ActiveSessions = kept
	}

	return tokens, sessions, nil
}

func copyRecord(record *models.CredentialRecord) *models.CredentialRecord {
	c := *record
	c.ActiveSessions = append([]models.SessionInfo(nil), record.ActiveSessions...)
	return &c
}

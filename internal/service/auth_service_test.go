package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/havenhomes/haven-backend/internal/auth"
	"github.com/havenhomes/haven-backend/internal/config"
	"github.com/havenhomes/haven-backend/internal/models"
	"github.com/havenhomes/haven-backend/internal/ratelimit"
	"github.com/havenhomes/haven-backend/internal/repository"
	"github.com/havenhomes/haven-backend/internal/utils"
)

// captureSender records delivered reset tokens so tests can complete the
// flow end to end.
type captureSender struct {
	tokens chan string
}

func (c *captureSender) SendPasswordReset(_ context.Context, _, _, token string) error {
	c.tokens <- token
	return nil
}

func (c *captureSender) waitForToken(t *testing.T) string {
	t.Helper()
	select {
	case token := <-c.tokens:
		return token
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a reset notification")
		return ""
	}
}

type authServiceFixture struct {
	svc    *AuthService
	store  *repository.MemoryCredentialStore
	hasher *auth.PasswordHasher
	sender *captureSender
}

func newAuthServiceFixture(t *testing.T) *authServiceFixture {
	t.Helper()

	store := repository.NewMemoryCredentialStore()

	hashCfg := auth.DefaultPasswordConfig()
	hashCfg.Memory = 16 * 1024
	hashCfg.Iterations = 1
	hashCfg.LegacyKey = "test-legacy-key"
	hasher := auth.NewPasswordHasher(hashCfg)

	tokens := auth.NewResetTokenManager(store, 15*time.Minute)
	sessions := NewSessionRegistry(store, 0)
	jwtService := auth.NewJWTService(&config.JWTSettings{
		Secret: "test-secret",
		Expiry: 15 * time.Minute,
		Issuer: "test-issuer",
	})

	sender := &captureSender{tokens: make(chan string, 8)}
	outbox := NewNotificationOutbox(sender, 8, 0)
	outbox.Start()
	t.Cleanup(outbox.Stop)

	backend := ratelimit.NewMemoryBackend()
	originLimiter := ratelimit.NewLimiter(backend, 10, 15*time.Minute)
	accountLimiter := ratelimit.NewLimiter(backend, 5, 15*time.Minute)
	backoff := ratelimit.NewBackoff(time.Millisecond, 2*time.Millisecond, 0)

	svc := NewAuthService(
		store, hasher, tokens, sessions, jwtService, outbox,
		originLimiter, accountLimiter, backoff,
		true, 15*time.Minute,
	)

	// Tests never sleep for real.
	svc.sleep = func(context.Context, time.Duration) {}
	svc.missDelay = func() time.Duration { return 0 }

	return &authServiceFixture{
		svc:    svc,
		store:  store,
		hasher: hasher,
		sender: sender,
	}
}

func (f *authServiceFixture) seedAccount(t *testing.T, accountID, email, password string) *models.CredentialRecord {
	t.Helper()

	hash, err := f.hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	record := models.NewCredentialRecord(accountID, email, "Test User")
	record.PasswordHash = hash
	if err := f.store.Create(context.Background(), record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return record
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthServiceFixture(t)
	f.seedAccount(t, "acct-1", "user@example.com", "Vt7#mQ2&pXz!")

	record, token, err := f.svc.Login(context.Background(), &models.LoginRequest{
		Email:    "user@example.com",
		Password: "Vt7#mQ2&pXz!",
	}, "203.0.113.9", "test-agent")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if token == "" {
		t.Error("Expected a non-empty access token")
	}
	if record.PasswordHash != "" {
		t.Error("Expected the returned record to be sanitized")
	}

	stored, err := f.store.GetByAccountID(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetByAccountID() error = %v", err)
	}
	if len(stored.ActiveSessions) != 1 {
		t.Errorf("Expected 1 session after login, got %d", len(stored.ActiveSessions))
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthServiceFixture(t)
	f.seedAccount(t, "acct-1", "user@example.com", "Vt7#mQ2&pXz!")

	_, _, err := f.svc.Login(context.Background(), &models.LoginRequest{
		Email:    "user@example.com",
		Password: "not-the-password",
	}, "203.0.113.9", "test-agent")

	if !errors.Is(err, utils.ErrInvalidCredentials) {
		t.Errorf("Expected invalid-credentials error, got %v", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	f := newAuthServiceFixture(t)
	record := f.seedAccount(t, "acct-1", "user@example.com", "Vt7#mQ2&pXz!")

	record.Active = false
	if err := f.store.ConditionalSave(context.Background(), record); err != nil {
		t.Fatalf("ConditionalSave() error = %v", err)
	}

	_, _, err := f.svc.Login(context.Background(), &models.LoginRequest{
		Email:    "user@example.com",
		Password: "Vt7#mQ2&pXz!",
	}, "203.0.113.9", "test-agent")

	// Indistinguishable from a wrong password.
	if !errors.Is(err, utils.ErrInvalidCredentials) {
		t.Errorf("Expected invalid-credentials error, got %v", err)
	}
}

func TestLoginMigratesLegacyHash(t *testing.T) {
	f := newAuthServiceFixture(t)

	legacy, err := f.hasher.LegacyHashForTest("Vt7#mQ2&pXz!")
	if err != nil {
		t.Fatalf("LegacyHashForTest() error = %v", err)
	}

	record := models.NewCredentialRecord("acct-1", "user@example.com", "Test User")
	record.PasswordHash = legacy
	record.LegacyHash = legacy
	if err := f.store.Create(context.Background(), record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, _, err = f.svc.Login(context.Background(), &models.LoginRequest{
		Email:    "user@example.com",
		Password: "Vt7#mQ2&pXz!",
	}, "203.0.113.9", "test-agent")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	stored, err := f.store.GetByAccountID(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetByAccountID() error = %v", err)
	}
	if !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Errorf("Expected the hash to be migrated, got %q", stored.PasswordHash)
	}
	if stored.LegacyHash != "" {
		t.Error("Expected the legacy hash to be cleared after migration")
	}

	// The migrated hash verifies on the next login.
	if _, _, err := f.svc.Login(context.Background(), &models.LoginRequest{
		Email:    "user@example.com",
		Password: "Vt7#mQ2&pXz!",
	}, "203.0.113.9", "test-agent"); err != nil {
		t.Errorf("Expected login after migration to succeed, got %v", err)
	}
}

func TestRequestResetResponsesAreIndistinguishable(t *testing.T) {
	f := newAuthServiceFixture(t)
	f.seedAccount(t, "acct-1", "user@example.com", "Vt7#mQ2&pXz!")

	known := f.svc.RequestReset(context.Background(), "user@example.com", "203.0.113.9")
	unknown := f.svc.RequestReset(context.Background(), "nobody@example.com", "203.0.113.9")

	record, err := f.store.GetByAccountID(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetByAccountID() error = %v", err)
	}
	record.Active = false
	if err := f.store.ConditionalSave(context.Background(), record); err != nil {
		t.Fatalf("ConditionalSave() error = %v", err)
	}
	inactive := f.svc.RequestReset(context.Background(), "user@example.com", "203.0.113.9")

	if known != unknown || unknown != inactive {
		t.Error("Every reset request must receive the identical response")
	}
}

func TestRequestResetIssuesTokenForKnownAccount(t *testing.T) {
	f := newAuthServiceFixture(t)
	f.seedAccount(t, "acct-1", "user@example.com", "Vt7#mQ2&pXz!")

	f.svc.RequestReset(context.Background(), "user@example.com", "203.0.113.9")
	token := f.sender.waitForToken(t)

	stored, err := f.store.GetByAccountID(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetByAccountID() error = %v", err)
	}
	if stored.ResetTokenHash == "" {
		t.Fatal("Expected a token digest to be stored")
	}
	if stored.ResetTokenHash == token {
		t.Error("The plaintext token must never be stored")
	}
	if stored.ResetTokenHash != auth.DigestToken(token) {
		t.Error("Stored digest does not match the delivered token")
	}
	if stored.FailedResetRequests != 1 {
		t.Errorf("Expected request counter 1, got %d", stored.FailedResetRequests)
	}
}

func TestRequestResetThrottledStillLooksSuccessful(t *testing.T) {
	f := newAuthServiceFixture(t)
	f.seedAccount(t, "acct-1", "user@example.com", "Vt7#mQ2&pXz!")

	// A one-request account budget: the second request is throttled.
	backend := ratelimit.NewMemoryBackend()
	f.svc.accountLimiter = ratelimit.NewLimiter(backend, 1, 15*time.Minute)
	f.svc.originLimiter = ratelimit.NewLimiter(backend, 100, 15*time.Minute)

	var slept []time.Duration
	f.svc.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }

	first := f.svc.RequestReset(context.Background(), "user@example.com", "203.0.113.9")
	f.sender.waitForToken(t)

	second := f.svc.RequestReset(context.Background(), "user@example.com", "203.0.113.9")

	if first != second {
		t.Error("A throttled request must receive the same response as a successful one")
	}
	if len(slept) == 0 {
		t.Error("Expected a backoff delay on the throttled request")
	}

	// No second notification goes out.
	select {
	case <-f.sender.tokens:
		t.Error("Expected no token issue on the throttled request")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestResetUnknownAccountSleeps(t *testing.T) {
	f := newAuthServiceFixture(t)

	sentinel := 37 * time.Millisecond
	f.svc.missDelay = func() time.Duration { return sentinel }

	var slept []time.Duration
	f.svc.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }

	f.svc.RequestReset(context.Background(), "nobody@example.com", "203.0.113.9")

	if len(slept) != 1 || slept[0] != sentinel {
		t.Errorf("Expected one artificial delay of %v on the unknown-account path, got %v", sentinel, slept)
	}

	// No notification goes out for an unknown account.
	select {
	case <-f.sender.tokens:
		t.Error("Expected no token issue for an unknown account")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResetPasswordEndToEnd(t *testing.T) {
	f := newAuthServiceFixture(t)
	f.seedAccount(t, "acct-1", "user@example.com", "Vt7#mQ2&pXz!")

	// Two live sessions before the reset.
	for _, id := range []string{"sess-1", "sess-2"} {
		if err := f.store.AddSession(context.Background(), "acct-1", models.NewSessionInfo(id, "203.0.113.9", "agent")); err != nil {
			t.Fatalf("AddSession() error = %v", err)
		}
	}

	f.svc.RequestReset(context.Background(), "user@example.com", "203.0.113.9")
	token := f.sender.waitForToken(t)

	if err := f.svc.ResetPassword(context.Background(), token, "Kp9$Wn3@Zr5!Hq8%"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}

	// All sessions are gone.
	stored, err := f.store.GetByAccountID(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetByAccountID() error = %v", err)
	}
	if len(stored.ActiveSessions) != 0 {
		t.Errorf("Expected all sessions cleared, got %d", len(stored.ActiveSessions))
	}

	// The token is spent.
	if err := f.svc.ResetPassword(context.Background(), token, "Xv4&Tm8@Qc6!Jd2#"); err == nil {
		t.Error("Expected a consumed token to be rejected")
	}

	// Old password out, new password in.
	if _, _, err := f.svc.Login(context.Background(), &models.LoginRequest{
		Email:    "user@example.com",
		Password: "Vt7#mQ2&pXz!",
	}, "203.0.113.9", "agent"); err == nil {
		t.Error("Expected the old password to stop working")
	}
	if _, _, err := f.svc.Login(context.Background(), &models.LoginRequest{
		Email:    "user@example.com",
		Password: "Kp9$Wn3@Zr5!Hq8%",
	}, "203.0.113.9", "agent"); err != nil {
		t.Errorf("Expected the new password to work, got %v", err)
	}
}

func TestResetPasswordRejectsWeakPasswordWithoutConsuming(t *testing.T) {
	f := newAuthServiceFixture(t)
	f.seedAccount(t, "acct-1", "user@example.com", "Vt7#mQ2&pXz!")

	f.svc.RequestReset(context.Background(), "user@example.com", "203.0.113.9")
	token := f.sender.waitForToken(t)

	err := f.svc.ResetPassword(context.Background(), token, "weak")
	if !errors.Is(err, utils.ErrWeakPassword) {
		t.Fatalf("Expected weak-password error, got %v", err)
	}

	// The token survives a strength rejection.
	if err := f.svc.ResetPassword(context.Background(), token, "Kp9$Wn3@Zr5!Hq8%"); err != nil {
		t.Errorf("Expected the token to remain valid after a weak attempt, got %v", err)
	}
}

func TestResetPasswordRejectsPersonalInfo(t *testing.T) {
	f := newAuthServiceFixture(t)
	f.seedAccount(t, "acct-1", "marta.jones@example.com", "Vt7#mQ2&pXz!")

	f.svc.RequestReset(context.Background(), "marta.jones@example.com", "203.0.113.9")
	token := f.sender.waitForToken(t)

	err := f.svc.ResetPassword(context.Background(), token, "Marta.jones!X77Q")
	if !errors.Is(err, utils.ErrWeakPassword) {
		t.Errorf("Expected the account's own email to be rejected, got %v", err)
	}
}

func TestChangePasswordSuccess(t *testing.T) {
	f := newAuthServiceFixture(t)
	f.seedAccount(t, "acct-1", "user@example.com", "Vt7#mQ2&pXz!")

	for _, id := range []string{"sess-keep", "sess-other"} {
		if err := f.store.AddSession(context.Background(), "acct-1", models.NewSessionInfo(id, "203.0.113.9", "agent")); err != nil {
			t.Fatalf("AddSession() error = %v", err)
		}
	}

	err := f.svc.ChangePassword(context.Background(), "acct-1", "sess-keep", &models.ChangePasswordRequest{
		CurrentPassword: "Vt7#mQ2&pXz!",
		NewPassword:     "Kp9$Wn3@Zr5!Hq8%",
	})
	if err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	// The changing session survives; the other is cleared.
	stored, err := f.store.GetByAccountID(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetByAccountID() error = %v", err)
	}
	if len(stored.ActiveSessions) != 1 || stored.ActiveSessions[0].SessionID != "sess-keep" {
		t.Errorf("Expected only sess-keep to remain, got %v", stored.ActiveSessions)
	}

	if _, _, err := f.svc.Login(context.Background(), &models.LoginRequest{
		Email:    "user@example.com",
		Password: "Kp9$Wn3@Zr5!Hq8%",
	}, "203.0.113.9", "agent"); err != nil {
		t.Errorf("Expected the new password to work, got %v", err)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newAuthServiceFixture(t)
	f.seedAccount(t, "acct-1", "user@example.com", "Vt7#mQ2&pXz!")

	err := f.svc.ChangePassword(context.Background(), "acct-1", "sess-1", &models.ChangePasswordRequest{
		CurrentPassword: "not-the-password",
		NewPassword:     "Kp9$Wn3@Zr5!Hq8%",
	})
	if !errors.Is(err, utils.ErrInvalidCurrentPassword) {
		t.Errorf("Expected invalid-current-password error, got %v", err)
	}
}

func TestChangePasswordSameAsCurrentHasNoSideEffects(t *testing.T) {
	f := newAuthServiceFixture(t)
	record := f.seedAccount(t, "acct-1", "user@example.com", "Vt7#mQ2&pXz!")
	versionBefore := record.Version

	err := f.svc.ChangePassword(context.Background(), "acct-1", "sess-1", &models.ChangePasswordRequest{
		CurrentPassword: "Vt7#mQ2&pXz!",
		NewPassword:     "Vt7#mQ2&pXz!",
	})
	if !errors.Is(err, utils.ErrSameAsCurrentPassword) {
		t.Fatalf("Expected same-as-current error, got %v", err)
	}

	stored, err := f.store.GetByAccountID(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetByAccountID() error = %v", err)
	}
	if stored.Version != versionBefore {
		t.Error("A rejected change must not write the record")
	}
}

func TestValidateTokenPreflight(t *testing.T) {
	f := newAuthServiceFixture(t)
	f.seedAccount(t, "acct-1", "user@example.com", "Vt7#mQ2&pXz!")

	f.svc.RequestReset(context.Background(), "user@example.com", "203.0.113.9")
	token := f.sender.waitForToken(t)

	if result := f.svc.ValidateTokenPreflight(context.Background(), token); !result.Valid {
		t.Error("Expected a fresh token to preflight as valid")
	}
	if result := f.svc.ValidateTokenPreflight(context.Background(), "deadbeef"); result.Valid {
		t.Error("Expected an unknown token to preflight as invalid")
	}

	// Preflight does not consume.
	if result := f.svc.ValidateTokenPreflight(context.Background(), token); !result.Valid {
		t.Error("Expected preflight to leave the token valid")
	}
}

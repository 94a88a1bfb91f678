package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/havenhomes/haven-backend/internal/config"
	"github.com/havenhomes/haven-backend/internal/constants"
	"github.com/havenhomes/haven-backend/internal/utils"
)

// PasswordConfig holds the parameters for the Argon2id password hashing
// algorithm, the preferred hash generation.
type PasswordConfig struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// LegacyKey is the HMAC key of the retired hash generation. Empty
	// means no legacy records can verify any more.
	LegacyKey string
}

// DefaultPasswordConfig returns the default configuration for password hashing
func DefaultPasswordConfig() *PasswordConfig {
	return &PasswordConfig{
		Memory:      constants.DefaultHashMemory,
		Iterations:  constants.DefaultHashIterations,
		Parallelism: constants.DefaultHashParallelism,
		SaltLength:  constants.DefaultHashSaltLength,
		KeyLength:   constants.DefaultHashKeyLength,
	}
}

// ConfigFromAppConfig creates a password config from the application config
func ConfigFromAppConfig(cfg *config.AppConfig) *PasswordConfig {
	return &PasswordConfig{
		Memory:      cfg.PasswordHash.Memory,
		Iterations:  cfg.PasswordHash.Iterations,
		Parallelism: cfg.PasswordHash.Parallelism,
		SaltLength:  cfg.PasswordHash.SaltLength,
		KeyLength:   cfg.PasswordHash.KeyLength,
		LegacyKey:   cfg.LegacyHash.Key,
	}
}

// PasswordHasher hashes and verifies credentials across hash generations.
// New hashes always use Argon2id; verification dispatches on the tag
// embedded in the stored string and reports when a record still carries a
// legacy hash so the caller can rehash after a successful login.
type PasswordHasher struct {
	cfg *PasswordConfig
}

// NewPasswordHasher creates a PasswordHasher with the given configuration.
func NewPasswordHasher(cfg *PasswordConfig) *PasswordHasher {
	if cfg == nil {
		cfg = DefaultPasswordConfig()
	}
	return &PasswordHasher{cfg: cfg}
}

// Hash generates a tagged hash of the provided password using Argon2id.
// The result encodes the algorithm, its parameters, the salt and the digest:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<digest>
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt, err := GenerateRandomBytes(h.cfg.SaltLength)
	if err != nil {
		// Entropy exhaustion is fatal; there is no safe fallback.
		return "", utils.NewHashingError(err)
	}

	digest := argon2.IDKey(
		[]byte(password),
		salt,
		h.cfg.Iterations,
		h.cfg.Memory,
		h.cfg.Parallelism,
		h.cfg.KeyLength,
	)

	encoded := fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		constants.HashTagArgon2id,
		argon2.Version,
		h.cfg.Memory,
		h.cfg.Iterations,
		h.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)

	return encoded, nil
}

// Verify compares a password with a stored tagged hash. It returns whether
// the password matched and whether the record needs migration to the
// preferred algorithm. Rehashing is the caller's responsibility; Verify
// itself never mutates anything.
//
// Unknown or malformed tags fail closed: matched is false and no error is
// returned, so a corrupt record behaves like a wrong password.
func (h *PasswordHasher) Verify(password, encodedHash string) (matched bool, needsMigration bool) {
	tag := hashTag(encodedHash)

	switch tag {
	case constants.HashTagArgon2id:
		return h.verifyArgon2id(password, encodedHash), false
	case constants.HashTagLegacyHMAC:
		// Migration is only meaningful after a successful match.
		ok := h.verifyLegacy(password, encodedHash)
		return ok, ok
	default:
		return false, false
	}
}

// hashTag extracts the algorithm tag from a stored hash string.
func hashTag(encodedHash string) string {
	if !strings.HasPrefix(encodedHash, "$") {
		return ""
	}
	rest := encodedHash[1:]
	end := strings.IndexByte(rest, '$')
	if end <= 0 {
		return ""
	}
	return rest[:end]
}

func (h *PasswordHasher) verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	// Recompute with the parameters embedded in the stored hash, not the
	// current config, so records survive parameter tuning.
	comparison := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(digest)))

	return subtle.ConstantTimeCompare(digest, comparison) == 1
}

// verifyLegacy checks a password against the retired keyed-hash generation:
//
//	$hmac-sha256$<salt>$<digest>  with digest = HMAC-SHA256(key, salt || password)
func (h *PasswordHasher) verifyLegacy(password, encodedHash string) bool {
	if h.cfg.LegacyKey == "" {
		return false
	}

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 4 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.cfg.LegacyKey))
	mac.Write(salt)
	mac.Write([]byte(password))
	comparison := mac.Sum(nil)

	return hmac.Equal(digest, comparison)
}

// LegacyHashForTest produces a legacy-generation hash. It exists so tests
// and the data-import tooling can create pre-migration records; application
// code never writes new legacy hashes.
func (h *PasswordHasher) LegacyHashForTest(password string) (string, error) {
	if h.cfg.LegacyKey == "" {
		return "", fmt.Errorf("no legacy key configured")
	}

	salt, err := GenerateRandomBytes(h.cfg.SaltLength)
	if err != nil {
		return "", utils.NewHashingError(err)
	}

	mac := hmac.New(sha256.New, []byte(h.cfg.LegacyKey))
	mac.Write(salt)
	mac.Write([]byte(password))
	digest := mac.Sum(nil)

	return fmt.Sprintf(
		"$%s$%s$%s",
		constants.HashTagLegacyHMAC,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// GenerateRandomBytes generates cryptographically secure random bytes
func GenerateRandomBytes(length uint32) ([]byte, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

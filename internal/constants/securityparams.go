package constants

// Auth Token Types
const (
	TokenTypeAccess = "access"
)

// Password Hash Tags
//
// The tag is the first segment of the stored hash string and selects the
// algorithm generation during verification. Unknown tags fail closed.
const (
	HashTagArgon2id   = "argon2id"
	HashTagLegacyHMAC = "hmac-sha256"
)

// Reset Token Parameters
const (
	// ResetTokenBytes is the entropy of a plaintext reset token (256 bits).
	ResetTokenBytes = 32
)

// Rate Limit Key Prefixes
const (
	RateLimitKeyOrigin  = "rl:reset:ip:"
	RateLimitKeyAccount = "rl:reset:acct:"
)

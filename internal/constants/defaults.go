package constants

import "time"

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// Default application settings
const (
	DefaultAppName    = "haven-auth"
	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8080
)

// Default hashing parameters (Argon2id)
const (
	DefaultHashMemory      = 64 * 1024
	DefaultHashIterations  = 3
	DefaultHashParallelism = 2
	DefaultHashSaltLength  = 16
	DefaultHashKeyLength   = 32
)

// Default reset token settings
const (
	DefaultResetTokenTTL = 15 * time.Minute
)

// Default rate limit settings for reset requests
const (
	DefaultOriginMaxRequests  = 10
	DefaultOriginWindow       = 15 * time.Minute
	DefaultAccountMaxRequests = 5
	DefaultAccountWindow      = 15 * time.Minute

	DefaultBackoffBase   = 500 * time.Millisecond
	DefaultBackoffCap    = 30 * time.Second
	DefaultBackoffJitter = 250 * time.Millisecond
)

// Default server timeouts
const (
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 35 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultStoreTimeout    = 5 * time.Second
)

// MaintenanceInterval is how often in-memory rate limit state is pruned
// and expired store rows are cleaned up.
const MaintenanceInterval = 10 * time.Minute

// DefaultSessionMaxIdle is how long a session may go unused before the
// cleanup pass removes it.
const DefaultSessionMaxIdle = 30 * 24 * time.Hour

// Default JWT settings
const (
	DefaultJWTExpiry = 15 * time.Minute
	DefaultJWTIssuer = "haven-api"
)

// Request handling
const (
	MaxRequestBodySize = 1 << 20

	MsgRequestBodyTooLarge = "Request body too large"
	MsgEmptyRequestBody    = "Request body is empty"
	MsgMalformedJSON       = "Request body contains malformed JSON"
)

// GenericResetMessage is the single response body for every password
// reset request, regardless of outcome.
const GenericResetMessage = "If an account with that email exists, a password reset link has been sent."

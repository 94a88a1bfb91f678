package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/havenhomes/haven-backend/internal/constants"
)

// AppConfig represents the entire application configuration
type AppConfig struct {
	App           AppSettings          `yaml:"app"`
	Database      DatabaseSettings     `yaml:"database"`
	Server        ServerSettings       `yaml:"server"`
	JWT           JWTSettings          `yaml:"jwt"`
	Logging       LoggingSettings      `yaml:"logging"`
	PasswordHash  HashSettings         `yaml:"password_hash"`
	LegacyHash    LegacyHashSettings   `yaml:"legacy_hash"`
	ResetToken    ResetTokenSettings   `yaml:"reset_token"`
	RateLimit     RateLimitSettings    `yaml:"rate_limit"`
	Redis         RedisSettings        `yaml:"redis"`
	Sessions      SessionSettings      `yaml:"sessions"`
	Notifications NotificationSettings `yaml:"notifications"`
}

// AppSettings contains general application settings
type AppSettings struct {
	Environment string `yaml:"environment" env:"APP_ENV"`
	Name        string `yaml:"name" env:"APP_NAME"`
	Version     string `yaml:"version" env:"APP_VERSION"`
}

// DatabaseSettings contains database connection settings
type DatabaseSettings struct {
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	Name     string `yaml:"name" env:"DB_NAME"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	MaxConns int    `yaml:"max_conns" env:"DB_MAX_CONNS"`
	MinConns int    `yaml:"min_conns" env:"DB_MIN_CONNS"`
}

// ServerSettings contains HTTP server settings
type ServerSettings struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// JWTSettings contains JWT authentication settings
type JWTSettings struct {
	Secret string        `yaml:"secret" env:"JWT_SECRET"`
	Expiry time.Duration `yaml:"expiry" env:"JWT_EXPIRY"`
	Issuer string        `yaml:"issuer" env:"JWT_ISSUER"`
}

// LoggingSettings contains logging configuration
type LoggingSettings struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// HashSettings contains Argon2id password hashing settings
type HashSettings struct {
	Memory      uint32 `yaml:"memory" env:"HASH_MEMORY"`
	Iterations  uint32 `yaml:"iterations" env:"HASH_ITERATIONS"`
	Parallelism uint8  `yaml:"parallelism" env:"HASH_PARALLELISM"`
	SaltLength  uint32 `yaml:"salt_length" env:"HASH_SALT_LENGTH"`
	KeyLength   uint32 `yaml:"key_length" env:"HASH_KEY_LENGTH"`
}

// LegacyHashSettings contains the key for the retired HMAC-SHA256 hash
// generation. Records hashed with it are migrated on first successful login.
type LegacyHashSettings struct {
	Key string `yaml:"key" env:"LEGACY_HASH_KEY"`
}

// ResetTokenSettings contains password reset token settings
type ResetTokenSettings struct {
	TTL time.Duration `yaml:"ttl" env:"RESET_TOKEN_TTL"`
}

// RateLimitSettings contains the dual-key rate limit and backoff settings
// for password reset requests.
type RateLimitSettings struct {
	Backend            string        `yaml:"backend" env:"RATE_LIMIT_BACKEND"` // "redis" or "memory"
	OriginMaxRequests  int           `yaml:"origin_max_requests" env:"RATE_LIMIT_ORIGIN_MAX"`
	OriginWindow       time.Duration `yaml:"origin_window" env:"RATE_LIMIT_ORIGIN_WINDOW"`
	AccountMaxRequests int           `yaml:"account_max_requests" env:"RATE_LIMIT_ACCOUNT_MAX"`
	AccountWindow      time.Duration `yaml:"account_window" env:"RATE_LIMIT_ACCOUNT_WINDOW"`
	BackoffBase        time.Duration `yaml:"backoff_base" env:"RATE_LIMIT_BACKOFF_BASE"`
	BackoffCap         time.Duration `yaml:"backoff_cap" env:"RATE_LIMIT_BACKOFF_CAP"`
	BackoffJitter      time.Duration `yaml:"backoff_jitter" env:"RATE_LIMIT_BACKOFF_JITTER"`
}

// RedisSettings contains the shared counter store connection settings
type RedisSettings struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// SessionSettings contains session registry settings
type SessionSettings struct {
	// MaxPerAccount caps concurrent sessions per account; 0 disables the cap
	// and AddSession never evicts.
	MaxPerAccount int `yaml:"max_per_account" env:"SESSIONS_MAX_PER_ACCOUNT"`

	// KeepOthersOnChange leaves other sessions logged in after a password
	// change. The default (false) clears every session except the one
	// making the change.
	KeepOthersOnChange bool `yaml:"keep_others_on_change" env:"SESSIONS_KEEP_OTHERS_ON_CHANGE"`
}

// NotificationSettings contains email notification settings
type NotificationSettings struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key" env:"SENDGRID_API_KEY"`
	FromAddress    string `yaml:"from_address" env:"NOTIFY_FROM_ADDRESS"`
	FromName       string `yaml:"from_name" env:"NOTIFY_FROM_NAME"`
	ResetURL       string `yaml:"reset_url" env:"NOTIFY_RESET_URL"`
	QueueSize      int    `yaml:"queue_size" env:"NOTIFY_QUEUE_SIZE"`
	MaxRetries     int    `yaml:"max_retries" env:"NOTIFY_MAX_RETRIES"`
}

// ConnectionString returns the database connection string
func (dbs *DatabaseSettings) ConnectionString() string {
	password := dbs.Password
	if password != "" {
		password = ":" + password
	}

	return fmt.Sprintf(
		"%s%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		dbs.User, password, dbs.Host, dbs.Port, dbs.Name,
	)
}

// ServerAddress returns the complete server address
func (ss *ServerSettings) ServerAddress() string {
	return fmt.Sprintf("%s:%d", ss.Host, ss.Port)
}

// IsDevelopment checks if the application is running in development mode
func (as *AppSettings) IsDevelopment() bool {
	return strings.ToLower(as.Environment) == constants.EnvDevelopment
}

// IsProduction checks if the application is running in production mode
func (as *AppSettings) IsProduction() bool {
	return strings.ToLower(as.Environment) == constants.EnvProduction
}

// Load loads the configuration from a config file and environment variables
func Load(configPath string) (*AppConfig, error) {
	config := &AppConfig{}

	// Load configuration from file if it exists
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Override with environment variables
	if err := LoadEnv(config); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	setDefaults(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logConfig(config)

	return config, nil
}

// setDefaults sets default values for any missing configuration
func setDefaults(config *AppConfig) {
	if config.App.Environment == "" {
		config.App.Environment = constants.EnvDevelopment
	}
	if config.App.Name == "" {
		config.App.Name = constants.DefaultAppName
	}
	if config.App.Version == "" {
		config.App.Version = "1.0.0"
	}

	if config.Server.Host == "" {
		config.Server.Host = constants.DefaultServerHost
	}
	if config.Server.Port == 0 {
		config.Server.Port = constants.DefaultServerPort
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = constants.DefaultReadTimeout
	}
	if config.Server.WriteTimeout == 0 {
		// The write timeout bounds the whole response, including the
		// rate-limit backoff sleep, so it must exceed the backoff cap.
		config.Server.WriteTimeout = constants.DefaultWriteTimeout
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = constants.DefaultShutdownTimeout
	}

	if config.JWT.Expiry == 0 {
		config.JWT.Expiry = constants.DefaultJWTExpiry
	}
	if config.JWT.Issuer == "" {
		config.JWT.Issuer = constants.DefaultJWTIssuer
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		if config.App.IsDevelopment() {
			config.Logging.Format = "console"
		} else {
			config.Logging.Format = "json"
		}
	}

	if config.PasswordHash.Memory == 0 {
		config.PasswordHash.Memory = constants.DefaultHashMemory
	}
	if config.PasswordHash.Iterations == 0 {
		config.PasswordHash.Iterations = constants.DefaultHashIterations
	}
	if config.PasswordHash.Parallelism == 0 {
		config.PasswordHash.Parallelism = constants.DefaultHashParallelism
	}
	if config.PasswordHash.SaltLength == 0 {
		config.PasswordHash.SaltLength = constants.DefaultHashSaltLength
	}
	if config.PasswordHash.KeyLength == 0 {
		config.PasswordHash.KeyLength = constants.DefaultHashKeyLength
	}

	if config.ResetToken.TTL == 0 {
		config.ResetToken.TTL = constants.DefaultResetTokenTTL
	}

	if config.RateLimit.Backend == "" {
		config.RateLimit.Backend = "memory"
	}
	if config.RateLimit.OriginMaxRequests == 0 {
		config.RateLimit.OriginMaxRequests = constants.DefaultOriginMaxRequests
	}
	if config.RateLimit.OriginWindow == 0 {
		config.RateLimit.OriginWindow = constants.DefaultOriginWindow
	}
	if config.RateLimit.AccountMaxRequests == 0 {
		config.RateLimit.AccountMaxRequests = constants.DefaultAccountMaxRequests
	}
	if config.RateLimit.AccountWindow == 0 {
		config.RateLimit.AccountWindow = constants.DefaultAccountWindow
	}
	if config.RateLimit.BackoffBase == 0 {
		config.RateLimit.BackoffBase = constants.DefaultBackoffBase
	}
	if config.RateLimit.BackoffCap == 0 {
		config.RateLimit.BackoffCap = constants.DefaultBackoffCap
	}
	if config.RateLimit.BackoffJitter == 0 {
		config.RateLimit.BackoffJitter = constants.DefaultBackoffJitter
	}

	if config.Notifications.FromName == "" {
		config.Notifications.FromName = "Haven Support"
	}
	if config.Notifications.QueueSize == 0 {
		config.Notifications.QueueSize = 64
	}
	if config.Notifications.MaxRetries == 0 {
		config.Notifications.MaxRetries = 3
	}
}

// validateConfig validates the configuration
func validateConfig(config *AppConfig) error {
	if config.App.IsProduction() {
		if config.JWT.Secret == "" {
			return fmt.Errorf("JWT secret is required in production")
		}
		if config.Database.Host == "" || config.Database.Name == "" {
			return fmt.Errorf("database host and name are required in production")
		}
		if config.RateLimit.Backend == "redis" && config.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis rate limit backend")
		}
	}

	if config.RateLimit.Backend != "redis" && config.RateLimit.Backend != "memory" {
		return fmt.Errorf("unknown rate limit backend %q", config.RateLimit.Backend)
	}

	if config.RateLimit.BackoffCap < config.RateLimit.BackoffBase {
		return fmt.Errorf("rate limit backoff cap must not be below the base delay")
	}

	return nil
}

// logConfig logs the loaded configuration with sensitive values hidden
func logConfig(config *AppConfig) {
	log.Info().
		Str("environment", config.App.Environment).
		Str("server_address", config.Server.ServerAddress()).
		Str("database_host", config.Database.Host).
		Str("rate_limit_backend", config.RateLimit.Backend).
		Dur("reset_token_ttl", config.ResetToken.TTL).
		Bool("jwt_secret_set", config.JWT.Secret != "").
		Bool("legacy_hash_key_set", config.LegacyHash.Key != "").
		Bool("sendgrid_key_set", config.Notifications.SendGridAPIKey != "").
		Msg("Configuration loaded")
}

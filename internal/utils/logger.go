package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/havenhomes/haven-backend/internal/config"
)

// InitLogger initializes the application logger with the given configuration
func InitLogger(cfg *config.AppConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if strings.ToLower(cfg.Logging.Format) == "console" && !cfg.App.IsProduction() {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("app", cfg.App.Name).
		Str("version", cfg.App.Version).
		Str("env", cfg.App.Environment).
		Logger()

	log.Info().Msg("Logger initialized")
}

// LogAuth logs an authentication event with the account identifier masked.
// Plaintext passwords and tokens must never reach this function.
func LogAuth(event, accountID, email string, success bool, reason string) {
	evt := log.Info()
	if !success {
		evt = log.Warn()
	}

	evt = evt.
		Str("event", event).
		Str("account_id", MaskIdentifier(accountID)).
		Str("email", MaskEmail(email)).
		Bool("success", success)

	if reason != "" {
		evt = evt.Str("reason", reason)
	}

	evt.Msg("Auth event")
}

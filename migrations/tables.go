package migrations

import (
	"context"
	"database/sql"
)

// createCredentialsTable creates the account_credentials table.
//
// reset_token_hash holds a SHA-256 digest of the plaintext token, never the
// token itself, and is indexed so consumption is a point lookup.
// record_version backs the conditional writes that keep token consumption
// single-use under concurrency.
func createCredentialsTable() Migration {
	return Migration{
		Name:        "create_account_credentials_table",
		Description: "Creates the account_credentials table",
		TableName:   "account_credentials",
		RunSQL: func(ctx context.Context, tx *sql.Tx) error {
			query := `
				CREATE TABLE IF NOT EXISTS account_credentials (
					account_id VARCHAR(36) PRIMARY KEY,
					email VARCHAR(255) NOT NULL,
					name VARCHAR(100) NOT NULL DEFAULT '',
					phone VARCHAR(32) NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					password_hash VARCHAR(512) NOT NULL,
					legacy_hash VARCHAR(512) NULL,
					reset_token_hash CHAR(64) NULL,
					reset_token_expires_at TIMESTAMP NULL,
					reset_token_used BOOLEAN NOT NULL DEFAULT FALSE,
					failed_reset_requests INT NOT NULL DEFAULT 0,
					last_reset_request_at TIMESTAMP NULL,
					record_version BIGINT NOT NULL DEFAULT 1,
					created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
					CONSTRAINT idx_email UNIQUE (email),
					INDEX idx_reset_token_hash (reset_token_hash)
				)
			`
			_, err := tx.ExecContext(ctx, query)
			return err
		},
	}
}

// createSessionsTable creates the account_sessions table.
func createSessionsTable() Migration {
	return Migration{
		Name:        "create_account_sessions_table",
		Description: "Creates the account_sessions table",
		TableName:   "account_sessions",
		RunSQL: func(ctx context.Context, tx *sql.Tx) error {
			query := `
				CREATE TABLE IF NOT EXISTS account_sessions (
					session_id VARCHAR(36) PRIMARY KEY,
					account_id VARCHAR(36) NOT NULL,
					created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
					last_accessed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
					origin_address VARCHAR(45) NOT NULL DEFAULT '',
					client_agent VARCHAR(255) NOT NULL DEFAULT '',
					CONSTRAINT fk_account FOREIGN KEY (account_id)
						REFERENCES account_credentials(account_id) ON DELETE CASCADE,
					INDEX idx_account_id (account_id)
				)
			`
			_, err := tx.ExecContext(ctx, query)
			return err
		},
	}
}

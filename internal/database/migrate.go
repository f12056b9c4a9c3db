package database

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// schema holds the ledger tables. The uniqueness constraints are load-
// bearing: owner_id uniqueness gives one account per owner, reference
// uniqueness is what makes idempotent replay race-free.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL UNIQUE,
		balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		currency   CHAR(3) NOT NULL,
		status     TEXT NOT NULL DEFAULT 'active',
		version    INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id                BIGSERIAL PRIMARY KEY,
		reference         TEXT NOT NULL UNIQUE,
		account_id        TEXT NOT NULL REFERENCES accounts(id),
		type              TEXT NOT NULL CHECK (type IN ('credit', 'debit')),
		amount            BIGINT NOT NULL CHECK (amount > 0),
		currency          CHAR(3) NOT NULL,
		status            TEXT NOT NULL,
		related_reference TEXT,
		metadata          JSONB NOT NULL DEFAULT '{}',
		created_at        TIMESTAMPTZ NOT NULL,
		completed_at      TIMESTAMPTZ,
		reversed_at       TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_created
		ON ledger_entries (account_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_status
		ON ledger_entries (status)`,
}

// Migrate applies the schema at startup.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	log.Info().Msg("migrations loaded")
	return nil
}

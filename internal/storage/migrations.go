package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a
// fatal error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					hash TEXT UNIQUE NOT NULL,
					date DATETIME NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					reference TEXT NOT NULL DEFAULT '',
					partner_label TEXT NOT NULL DEFAULT '',
					amount_cents INTEGER NOT NULL DEFAULT 0,
					currency TEXT NOT NULL DEFAULT 'EUR',
					account_id TEXT NOT NULL DEFAULT '',
					iban TEXT NOT NULL DEFAULT '',
					partner_id TEXT NOT NULL DEFAULT '',
					partner_scope TEXT NOT NULL DEFAULT '',
					partner_matched_by TEXT NOT NULL DEFAULT '',
					partner_match_confidence INTEGER NOT NULL DEFAULT 0,
					partner_suggestions TEXT NOT NULL DEFAULT '',
					category_id TEXT NOT NULL DEFAULT '',
					category_suggestions TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_user_date ON transactions(user_id, date)`,

				`CREATE TABLE IF NOT EXISTS partners (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL DEFAULT '',
					name TEXT NOT NULL,
					vat_id TEXT NOT NULL DEFAULT '',
					scope TEXT NOT NULL,
					aliases TEXT NOT NULL DEFAULT '',
					ibans TEXT NOT NULL DEFAULT '',
					email_domains TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_partners_user ON partners(user_id)`,

				`CREATE TABLE IF NOT EXISTS learned_patterns (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					owner_type TEXT NOT NULL,
					owner_id TEXT NOT NULL,
					pattern TEXT NOT NULL,
					confidence INTEGER NOT NULL DEFAULT 0,
					source_ids TEXT NOT NULL DEFAULT '',
					usage_count INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(owner_type, owner_id, pattern)
				)`,

				`CREATE TABLE IF NOT EXISTS manual_removals (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					owner_type TEXT NOT NULL,
					owner_id TEXT NOT NULL,
					target_kind TEXT NOT NULL,
					target_id TEXT NOT NULL,
					matched_text TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(owner_type, owner_id, target_kind, target_id)
				)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					template_slug TEXT NOT NULL DEFAULT '',
					name TEXT NOT NULL,
					matched_partner_ids TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_categories_user ON categories(user_id)`,

				`CREATE TABLE IF NOT EXISTS files (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					file_name TEXT NOT NULL DEFAULT '',
					extracted_date DATETIME,
					extracted_amount_cents INTEGER NOT NULL DEFAULT 0,
					extracted_currency TEXT NOT NULL DEFAULT '',
					extracted_partner TEXT NOT NULL DEFAULT '',
					extracted_vat_id TEXT NOT NULL DEFAULT '',
					extracted_iban TEXT NOT NULL DEFAULT '',
					invoice_direction TEXT NOT NULL DEFAULT '',
					matched_user_account TEXT NOT NULL DEFAULT '',
					partner_id TEXT NOT NULL DEFAULT '',
					extracted_issuer TEXT NOT NULL DEFAULT '',
					extracted_recipient TEXT NOT NULL DEFAULT '',
					extraction_complete INTEGER NOT NULL DEFAULT 0,
					not_invoice INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS file_transactions (
					file_id TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (file_id, transaction_id)
				)`,

				`CREATE TABLE IF NOT EXISTS user_data (
					user_id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					company_name TEXT NOT NULL DEFAULT '',
					aliases TEXT NOT NULL DEFAULT '',
					vat_ids TEXT NOT NULL DEFAULT '',
					ibans TEXT NOT NULL DEFAULT '',
					source_ibans TEXT NOT NULL DEFAULT '',
					own_emails TEXT NOT NULL DEFAULT '',
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add email attachment hints to files",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE files ADD COLUMN email_domain TEXT NOT NULL DEFAULT ''`,
				`ALTER TABLE files ADD COLUMN possible_invoice INTEGER NOT NULL DEFAULT 0`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Indexes for cursor scans and pattern lookups",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id, id)`,
				`CREATE INDEX IF NOT EXISTS idx_files_user_extracted ON files(user_id, extraction_complete, not_invoice, id)`,
				`CREATE INDEX IF NOT EXISTS idx_learned_patterns_owner ON learned_patterns(owner_type, owner_id)`,
				`CREATE INDEX IF NOT EXISTS idx_manual_removals_owner ON manual_removals(owner_type, owner_id)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Per-user hash uniqueness and category match confidence",
		Up: func(tx *sql.Tx) error {
			// SQLite cannot drop the column-level UNIQUE on hash, so the
			// table is rebuilt with the scoped constraint.
			queries := []string{
				`ALTER TABLE transactions RENAME TO transactions_old`,
				`CREATE TABLE transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					hash TEXT NOT NULL,
					date DATETIME NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					reference TEXT NOT NULL DEFAULT '',
					partner_label TEXT NOT NULL DEFAULT '',
					amount_cents INTEGER NOT NULL DEFAULT 0,
					currency TEXT NOT NULL DEFAULT 'EUR',
					account_id TEXT NOT NULL DEFAULT '',
					iban TEXT NOT NULL DEFAULT '',
					partner_id TEXT NOT NULL DEFAULT '',
					partner_scope TEXT NOT NULL DEFAULT '',
					partner_matched_by TEXT NOT NULL DEFAULT '',
					partner_match_confidence INTEGER NOT NULL DEFAULT 0,
					partner_suggestions TEXT NOT NULL DEFAULT '',
					category_id TEXT NOT NULL DEFAULT '',
					category_match_confidence INTEGER NOT NULL DEFAULT 0,
					category_suggestions TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(user_id, hash)
				)`,
				`INSERT INTO transactions (
					id, user_id, hash, date, name, reference, partner_label,
					amount_cents, currency, account_id, iban,
					partner_id, partner_scope, partner_matched_by, partner_match_confidence,
					partner_suggestions, category_id, category_suggestions, created_at
				) SELECT
					id, user_id, hash, date, name, reference, partner_label,
					amount_cents, currency, account_id, iban,
					partner_id, partner_scope, partner_matched_by, partner_match_confidence,
					partner_suggestions, category_id, category_suggestions, created_at
				FROM transactions_old`,
				`DROP TABLE transactions_old`,
				`CREATE INDEX idx_transactions_user_date ON transactions(user_id, date)`,
				`CREATE INDEX idx_transactions_user_id ON transactions(user_id, id)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     5,
		Description: "Resolver counterparty column on files",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`ALTER TABLE files ADD COLUMN counterparty TEXT NOT NULL DEFAULT ''`); err != nil {
				return fmt.Errorf("failed to execute query: %w", err)
			}
			return nil
		},
	},
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

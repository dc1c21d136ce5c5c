package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// schemaVersion is the current expected schema version.
const schemaVersion = 2

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of schema migrations, each applied once and
// tracked in the schema_version table.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: conversations, conversation_states, messages, quotes",
		SQL: `
		CREATE TABLE IF NOT EXISTS conversations (
			phone           TEXT PRIMARY KEY,
			name            TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL DEFAULT 'ACTIVE',
			last_message_at DATETIME NOT NULL,
			created_at      DATETIME NOT NULL,
			updated_at      DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversation_states (
			phone      TEXT PRIMARY KEY REFERENCES conversations(phone) ON DELETE CASCADE,
			step       TEXT NOT NULL,
			data       TEXT NOT NULL DEFAULT '{}',
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			phone               TEXT NOT NULL REFERENCES conversations(phone) ON DELETE CASCADE,
			provider_message_id TEXT NOT NULL DEFAULT '',
			direction           TEXT NOT NULL,
			type                TEXT NOT NULL DEFAULT '',
			content             TEXT NOT NULL DEFAULT '',
			media_id            TEXT NOT NULL DEFAULT '',
			media_type          TEXT NOT NULL DEFAULT '',
			created_at          DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_phone ON messages(phone, id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_provider_id
			ON messages(provider_message_id) WHERE provider_message_id <> '';

		CREATE TABLE IF NOT EXISTS quotes (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			email        TEXT NOT NULL,
			phone        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			project_type TEXT NOT NULL DEFAULT '',
			room_size    TEXT NOT NULL DEFAULT '',
			timeline     TEXT NOT NULL DEFAULT '',
			budget       TEXT NOT NULL DEFAULT '',
			photos       TEXT NOT NULL DEFAULT '[]',
			status       TEXT NOT NULL DEFAULT 'PENDING',
			created_at   DATETIME NOT NULL,
			updated_at   DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_quotes_phone ON quotes(phone);
		`,
	},
	{
		Version:     2,
		Description: "v2: admin listing indexes",
		SQL: `
		CREATE INDEX IF NOT EXISTS idx_quotes_status_created ON quotes(status, created_at);
		CREATE INDEX IF NOT EXISTS idx_quotes_created ON quotes(created_at);
		CREATE INDEX IF NOT EXISTS idx_conversations_last ON conversations(last_message_at);
		`,
	},
}

// RunMigrations applies all pending schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := GetSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
		logger.Info("migration applied", "version", m.Version)
	}
	return nil
}

// GetSchemaVersion returns the highest applied migration, 0 on a fresh database.
func GetSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return v, nil
}

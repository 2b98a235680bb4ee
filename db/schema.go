package db

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the tables the server needs if they do not exist
// yet. Kept idempotent so it can run on every startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			email        TEXT UNIQUE,
			first_name   TEXT NOT NULL DEFAULT '',
			last_name    TEXT NOT NULL DEFAULT '',
			pseudo       TEXT NOT NULL DEFAULT '',
			department   TEXT NOT NULL DEFAULT '',
			bio          TEXT NOT NULL DEFAULT '',
			avatar_color TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS teams (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			contest_id    TEXT NOT NULL,
			captain_id    TEXT NOT NULL,
			members       JSONB NOT NULL DEFAULT '[]',
			max_members   INT  NOT NULL DEFAULT 3,
			join_requests JSONB NOT NULL DEFAULT '[]',
			is_public     BOOLEAN NOT NULL DEFAULT TRUE,
			status        TEXT NOT NULL DEFAULT 'pending',
			history       JSONB NOT NULL DEFAULT '[]',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_teams_contest_id ON teams (contest_id)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL,
			message    TEXT NOT NULL DEFAULT '',
			data       JSONB,
			read       BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications (user_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

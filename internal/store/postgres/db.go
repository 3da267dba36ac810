package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the chat schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id               BIGSERIAL    PRIMARY KEY,
			name             VARCHAR(100) NOT NULL,
			email            VARCHAR(100) NOT NULL,
			hashed_password  VARCHAR(255) NOT NULL,
			role             VARCHAR(20)  NOT NULL DEFAULT 'staff',
			is_active        BOOLEAN      NOT NULL DEFAULT TRUE,
			last_active_at   TIMESTAMPTZ,
			created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_ci ON users (LOWER(email))`,

		`CREATE TABLE IF NOT EXISTS threads (
			id              BIGSERIAL    PRIMARY KEY,
			name            VARCHAR(100),
			type            VARCHAR(20)  NOT NULL,
			creator_id      BIGINT       NOT NULL REFERENCES users(id),
			is_active       BOOLEAN      NOT NULL DEFAULT TRUE,
			deleted_by      BIGINT,
			deleted_at      TIMESTAMPTZ,
			created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			last_message_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS thread_participants (
			thread_id BIGINT      NOT NULL REFERENCES threads(id),
			user_id   BIGINT      NOT NULL REFERENCES users(id),
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (thread_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id            BIGSERIAL    PRIMARY KEY,
			thread_id     BIGINT       NOT NULL REFERENCES threads(id),
			sender_id     BIGINT       NOT NULL REFERENCES users(id),
			content       TEXT         NOT NULL,
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			is_deleted    BOOLEAN      NOT NULL DEFAULT FALSE,
			deleted_by    BIGINT,
			deleted_at    TIMESTAMPTZ,
			delete_reason VARCHAR(20)
		)`,

		`CREATE TABLE IF NOT EXISTS message_reads (
			message_id BIGINT      NOT NULL REFERENCES messages(id),
			user_id    BIGINT      NOT NULL REFERENCES users(id),
			read_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (message_id, user_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_users_last_active ON users (last_active_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_threads_type ON threads (type)`,
		`CREATE INDEX IF NOT EXISTS idx_threads_last_message ON threads (last_message_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_user ON thread_participants (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread_created ON messages (thread_id, created_at ASC, id ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_message_reads_user ON message_reads (user_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Package postgres backs the lexical index and content store with full-text
// search over the content_units table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the content_units table and its full-text indexes.
// exact_tokens keeps surface forms (simple config), lemma_tokens keeps
// stemmed forms, so the two lexical strategies query different vectors over
// the same rows.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026053101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS content_units (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	content_length INTEGER NOT NULL DEFAULT 0,
	exact_tokens TSVECTOR GENERATED ALWAYS AS (to_tsvector('simple', title || ' ' || body)) STORED,
	lemma_tokens TSVECTOR GENERATED ALWAYS AS (to_tsvector('turkish', title || ' ' || body)) STORED,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_content_units_user ON content_units(user_id);
CREATE INDEX IF NOT EXISTS idx_content_units_exact ON content_units USING GIN(exact_tokens);
CREATE INDEX IF NOT EXISTS idx_content_units_lemma ON content_units USING GIN(lemma_tokens);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

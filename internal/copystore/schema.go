package copystore

import (
	"context"
	"fmt"
)

// Schema creates the copy store tables. Idempotent, run at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS job_copies (
	job_id      TEXT PRIMARY KEY,
	client_name TEXT NOT NULL DEFAULT '',
	document    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS job_sitemaps (
	job_id     TEXT PRIMARY KEY,
	source     TEXT NOT NULL DEFAULT '',
	row_count  INTEGER NOT NULL DEFAULT 0,
	document   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS recently_deleted_job_copies (
	job_id        TEXT PRIMARY KEY,
	client_name   TEXT NOT NULL DEFAULT '',
	document      JSONB NOT NULL,
	deleted_at    TIMESTAMPTZ NOT NULL,
	destroy_after TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recently_deleted_destroy_after
	ON recently_deleted_job_copies (destroy_after);
`

// EnsureSchema applies the copy store schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure copy store schema: %w", err)
	}
	return nil
}

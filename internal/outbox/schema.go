package outbox

import (
	"context"
	"fmt"
)

// Schema creates the delivery_outbox table. Idempotent, run at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS delivery_outbox (
	id                  UUID PRIMARY KEY,
	job_id              TEXT NOT NULL UNIQUE,
	client_name         TEXT NOT NULL DEFAULT '',
	payload_ref         TEXT NOT NULL,
	default_target_url  TEXT NOT NULL,
	override_target_url TEXT,
	preview_url         TEXT,
	status              TEXT NOT NULL,
	scheduled_for       TIMESTAMPTZ,
	attempt_count       INTEGER NOT NULL DEFAULT 0,
	site_check_attempts INTEGER NOT NULL DEFAULT 0,
	site_check_next_at  TIMESTAMPTZ,
	last_error          TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	sent_at             TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_delivery_outbox_status ON delivery_outbox (status);
CREATE INDEX IF NOT EXISTS idx_delivery_outbox_scheduled_for ON delivery_outbox (scheduled_for);
CREATE INDEX IF NOT EXISTS idx_delivery_outbox_site_check_next_at ON delivery_outbox (site_check_next_at);
`

// EnsureSchema applies the outbox schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure outbox schema: %w", err)
	}
	return nil
}

package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Claim atomically moves a sendable record into SENDING and increments its
// attempt count. Exactly one of any number of concurrent claimants wins;
// everyone else gets (nil, false, nil) because their UPDATE matches no rows.
func (s *Store) Claim(ctx context.Context, id uuid.UUID) (*Delivery, bool, error) {
	d, err := scanDelivery(s.pool.QueryRow(ctx,
		`UPDATE delivery_outbox
		 SET status = $2, attempt_count = attempt_count + 1, last_error = NULL,
		     updated_at = $3
		 WHERE id = $1 AND status = ANY($4)
		 RETURNING `+deliveryColumns,
		id, StatusSending, s.clock.Now().UTC(), SendableStatuses,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to claim delivery: %w", err)
	}
	return d, true, nil
}

// MarkSent completes a claimed delivery. Conditional on the record still
// being SENDING, so a send that raced with an external status change is a
// safe no-op.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) (bool, error) {
	now := s.clock.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE delivery_outbox
		 SET status = $2, sent_at = $3, last_error = NULL, updated_at = $3
		 WHERE id = $1 AND status = $4`,
		id, StatusSent, now, StatusSending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed returns a claimed delivery to FAILED with a truncated error.
// The record stays in the sendable set, so the next sweep retries it.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, errText string) (bool, error) {
	if len(errText) > maxErrorLen {
		errText = errText[:maxErrorLen]
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE delivery_outbox
		 SET status = $2, last_error = $3, updated_at = $4
		 WHERE id = $1 AND status = $5`,
		id, StatusFailed, errText, s.clock.Now().UTC(), StatusSending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DueDeliveries lists ids of sendable records whose scheduled_for is unset
// or has passed, oldest first. The sweep dispatches a claim+send per id.
func (s *Store) DueDeliveries(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM delivery_outbox
		 WHERE status = ANY($1) AND (scheduled_for IS NULL OR scheduled_for <= $2)
		 ORDER BY updated_at ASC
		 LIMIT $3`,
		SendableStatuses, s.clock.Now().UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due deliveries: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan delivery id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetOverrideURL sets or clears (empty string) the operator override URL.
func (s *Store) SetOverrideURL(ctx context.Context, id uuid.UUID, url string) error {
	var override *string
	if url != "" {
		override = &url
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE delivery_outbox SET override_target_url = $2, updated_at = $3 WHERE id = $1`,
		id, override, s.clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set override url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery not found: %s", id)
	}
	return nil
}

// markReadyFrom are the states an operator may force into READY_TO_SEND.
// In-flight (SENDING, CHECKING_SITE) and terminal SENT records are excluded.
var markReadyFrom = []string{
	StatusWaitingForSite,
	StatusCompletedPendingSend,
	StatusReady,
	StatusFailed,
}

// MarkReady forces a record into READY_TO_SEND, skipping any pending site
// check.
func (s *Store) MarkReady(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE delivery_outbox SET status = $2, updated_at = $3
		 WHERE id = $1 AND status = ANY($4)`,
		id, StatusReadyToSend, s.clock.Now().UTC(), markReadyFrom,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery ready: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Schedule sets or clears a future-dated send.
func (s *Store) Schedule(ctx context.Context, id uuid.UUID, at *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE delivery_outbox SET scheduled_for = $2, updated_at = $3 WHERE id = $1`,
		id, at, s.clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery not found: %s", id)
	}
	return nil
}

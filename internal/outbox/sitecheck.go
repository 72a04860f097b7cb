package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DueSiteChecks lists ids of WAITING_FOR_SITE records whose next check time
// is unset or has passed.
func (s *Store) DueSiteChecks(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM delivery_outbox
		 WHERE status = $1 AND (site_check_next_at IS NULL OR site_check_next_at <= $2)
		 ORDER BY site_check_next_at ASC NULLS FIRST
		 LIMIT $3`,
		StatusWaitingForSite, s.clock.Now().UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due site checks: %w", err)
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

// ClaimSiteCheck atomically moves a waiting record into CHECKING_SITE, with
// the same one-winner discipline as Claim.
func (s *Store) ClaimSiteCheck(ctx context.Context, id uuid.UUID) (*Delivery, bool, error) {
	d, err := scanDelivery(s.pool.QueryRow(ctx,
		`UPDATE delivery_outbox SET status = $2, updated_at = $3
		 WHERE id = $1 AND status = $4
		 RETURNING `+deliveryColumns,
		id, StatusCheckingSite, s.clock.Now().UTC(), StatusWaitingForSite,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to claim site check: %w", err)
	}
	return d, true, nil
}

// SiteCheckPassed promotes a checking record to READY_TO_SEND.
func (s *Store) SiteCheckPassed(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE delivery_outbox SET status = $2, updated_at = $3
		 WHERE id = $1 AND status = $4`,
		id, StatusReadyToSend, s.clock.Now().UTC(), StatusCheckingSite,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete site check: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SiteCheckFailed reverts a checking record to WAITING_FOR_SITE, bumping the
// attempt counter and recording when to probe next.
func (s *Store) SiteCheckFailed(ctx context.Context, id uuid.UUID, nextAt time.Time, probeErr string) (bool, error) {
	if len(probeErr) > maxErrorLen {
		probeErr = probeErr[:maxErrorLen]
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE delivery_outbox
		 SET status = $2, site_check_attempts = site_check_attempts + 1,
		     site_check_next_at = $3, last_error = $4, updated_at = $5
		 WHERE id = $1 AND status = $6`,
		id, StatusWaitingForSite, nextAt.UTC(), probeErr, s.clock.Now().UTC(), StatusCheckingSite,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record site check failure: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

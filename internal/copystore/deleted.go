package copystore

import (
	"context"
	"fmt"
	"time"
)

// DeleteCopy moves a job's copy into the recently-deleted holding area,
// recoverable until destroy_after. Returns false when no copy exists.
func (s *Store) DeleteCopy(ctx context.Context, jobID string, hold time.Duration) (bool, error) {
	if hold <= 0 {
		hold = DefaultDeleteHold
	}
	now := s.clock.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO recently_deleted_job_copies
		   (job_id, client_name, document, deleted_at, destroy_after)
		 SELECT job_id, client_name, document, $2, $3 FROM job_copies WHERE job_id = $1
		 ON CONFLICT (job_id) DO UPDATE SET
		   client_name = EXCLUDED.client_name, document = EXCLUDED.document,
		   deleted_at = $2, destroy_after = $3`,
		jobID, now, now.Add(hold),
	)
	if err != nil {
		return false, fmt.Errorf("failed to stage deleted copy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM job_copies WHERE job_id = $1`, jobID); err != nil {
		return false, fmt.Errorf("failed to delete copy: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}
	return true, nil
}

// RestoreCopy moves a soft-deleted copy back. Returns false when nothing is
// held for the job.
func (s *Store) RestoreCopy(ctx context.Context, jobID string) (bool, error) {
	now := s.clock.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin restore: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO job_copies (job_id, client_name, document, created_at, updated_at)
		 SELECT job_id, client_name, document, $2, $2
		 FROM recently_deleted_job_copies WHERE job_id = $1
		 ON CONFLICT (job_id) DO UPDATE SET
		   client_name = EXCLUDED.client_name, document = EXCLUDED.document, updated_at = $2`,
		jobID, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to restore copy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM recently_deleted_job_copies WHERE job_id = $1`, jobID); err != nil {
		return false, fmt.Errorf("failed to clear deleted copy: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit restore: %w", err)
	}
	return true, nil
}

// ListDeleted retrieves copies awaiting destruction.
func (s *Store) ListDeleted(ctx context.Context, limit int) ([]*DeletedCopy, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, client_name, document, deleted_at, destroy_after
		 FROM recently_deleted_job_copies
		 ORDER BY deleted_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list deleted copies: %w", err)
	}
	defer rows.Close()

	var out []*DeletedCopy
	for rows.Next() {
		var d DeletedCopy
		if err := rows.Scan(&d.JobID, &d.ClientName, &d.Document, &d.DeletedAt, &d.DestroyAfter); err != nil {
			return nil, fmt.Errorf("failed to scan deleted copy: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// FinalizeDeleted permanently destroys held copies whose destroy_after has
// passed. Returns how many were destroyed.
func (s *Store) FinalizeDeleted(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM recently_deleted_job_copies WHERE destroy_after <= $1`,
		s.clock.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to finalize deleted copies: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

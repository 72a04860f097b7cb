// Package copystore persists generated artifacts: the compiled site copy for
// each job, the sitemap it was built from, and a soft-delete holding area.
// The outbox stores only a payload reference; this package resolves it.
package copystore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RefPrefix prefixes every payload reference issued by this store.
const RefPrefix = "copy:"

// DefaultDeleteHold is how long a deleted copy stays recoverable.
const DefaultDeleteHold = 48 * time.Hour

// Copy is the compiled site content for one job.
type Copy struct {
	JobID      string          `json:"job_id"`
	ClientName string          `json:"client_name"`
	Document   json.RawMessage `json:"document"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Sitemap is the stored site plan for one job.
type Sitemap struct {
	JobID     string          `json:"job_id"`
	Source    string          `json:"source"`
	RowCount  int             `json:"row_count"`
	Document  json.RawMessage `json:"document"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DeletedCopy is a soft-deleted copy awaiting destruction.
type DeletedCopy struct {
	JobID        string          `json:"job_id"`
	ClientName   string          `json:"client_name"`
	Document     json.RawMessage `json:"document"`
	DeletedAt    time.Time       `json:"deleted_at"`
	DestroyAfter time.Time       `json:"destroy_after"`
}

// Store wraps a PostgreSQL connection pool
type Store struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, clock: clock.C}
}

// NewWithClock wraps an existing pool with an injected clock, for tests.
func NewWithClock(pool *pgxpool.Pool, c clock.Clock) *Store {
	return &Store{pool: pool, clock: c}
}

// Ref returns the payload reference for a job's copy.
func Ref(jobID string) string {
	return RefPrefix + jobID
}

// JobIDFromRef resolves a payload reference back to its job id.
func JobIDFromRef(ref string) (string, error) {
	if !strings.HasPrefix(ref, RefPrefix) {
		return "", fmt.Errorf("unknown payload reference %q", ref)
	}
	return strings.TrimPrefix(ref, RefPrefix), nil
}

// SaveCopy upserts the compiled document for a job and returns its payload
// reference.
func (s *Store) SaveCopy(ctx context.Context, jobID, clientName string, document any) (string, error) {
	raw, err := json.Marshal(document)
	if err != nil {
		return "", fmt.Errorf("failed to marshal copy: %w", err)
	}

	now := s.clock.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO job_copies (job_id, client_name, document, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (job_id) DO UPDATE SET
		   client_name = $2, document = $3, updated_at = $4`,
		jobID, clientName, raw, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save copy for job %s: %w", jobID, err)
	}
	return Ref(jobID), nil
}

// GetCopy retrieves a job's compiled document, or nil when absent.
func (s *Store) GetCopy(ctx context.Context, jobID string) (*Copy, error) {
	var c Copy
	err := s.pool.QueryRow(ctx,
		`SELECT job_id, client_name, document, created_at, updated_at
		 FROM job_copies WHERE job_id = $1`,
		jobID,
	).Scan(&c.JobID, &c.ClientName, &c.Document, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get copy: %w", err)
	}
	return &c, nil
}

// LoadByRef resolves a payload reference to its document bytes.
func (s *Store) LoadByRef(ctx context.Context, ref string) (json.RawMessage, error) {
	jobID, err := JobIDFromRef(ref)
	if err != nil {
		return nil, err
	}
	c, err := s.GetCopy(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("no copy stored for reference %q", ref)
	}
	return c.Document, nil
}

// ListCopies retrieves copies, optionally filtered by a client-name
// substring.
func (s *Store) ListCopies(ctx context.Context, client string, limit, offset int) ([]*Copy, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT job_id, client_name, document, created_at, updated_at
		FROM job_copies WHERE 1=1`
	args := []any{}
	argNum := 1

	if client != "" {
		query += fmt.Sprintf(" AND client_name ILIKE $%d", argNum)
		args = append(args, "%"+client+"%")
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list copies: %w", err)
	}
	defer rows.Close()

	var out []*Copy
	for rows.Next() {
		var c Copy
		if err := rows.Scan(&c.JobID, &c.ClientName, &c.Document, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan copy: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// SaveSitemap upserts the site plan for a job.
func (s *Store) SaveSitemap(ctx context.Context, jobID, source string, rowCount int, document any) error {
	raw, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to marshal sitemap: %w", err)
	}

	now := s.clock.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO job_sitemaps (job_id, source, row_count, document, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (job_id) DO UPDATE SET
		   source = $2, row_count = $3, document = $4, updated_at = $5`,
		jobID, source, rowCount, raw, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save sitemap for job %s: %w", jobID, err)
	}
	return nil
}

// GetSitemap retrieves a job's stored site plan, or nil when absent.
func (s *Store) GetSitemap(ctx context.Context, jobID string) (*Sitemap, error) {
	var m Sitemap
	err := s.pool.QueryRow(ctx,
		`SELECT job_id, source, row_count, document, created_at, updated_at
		 FROM job_sitemaps WHERE job_id = $1`,
		jobID,
	).Scan(&m.JobID, &m.Source, &m.RowCount, &m.Document, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sitemap: %w", err)
	}
	return &m, nil
}

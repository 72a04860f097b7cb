// Package outbox is the durable delivery outbox: a PostgreSQL table of
// delivery records with an explicit state machine. All cross-process
// coordination happens through conditional UPDATEs; a transition that races
// with an external status change affects zero rows and the loser backs off.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Delivery record states.
const (
	StatusWaitingForSite       = "WAITING_FOR_SITE"
	StatusCheckingSite         = "CHECKING_SITE"
	StatusCompletedPendingSend = "COMPLETED_PENDING_SEND"
	StatusReady                = "READY"
	StatusReadyToSend          = "READY_TO_SEND"
	StatusSending              = "SENDING"
	StatusSent                 = "SENT"
	StatusFailed               = "FAILED"
)

// SendableStatuses are the states a send attempt may be claimed from.
var SendableStatuses = []string{
	StatusReady,
	StatusReadyToSend,
	StatusFailed,
	StatusCompletedPendingSend,
}

// maxErrorLen bounds last_error so a giant response body cannot bloat the row.
const maxErrorLen = 2000

// Delivery is one outbox record, unique on job id. Rows are created once at
// job completion and never deleted; terminal rows are retained for audit.
type Delivery struct {
	ID                uuid.UUID  `json:"id"`
	JobID             string     `json:"job_id"`
	ClientName        string     `json:"client_name"`
	PayloadRef        string     `json:"payload_ref"`
	DefaultTargetURL  string     `json:"default_target_url"`
	OverrideTargetURL *string    `json:"override_target_url,omitempty"`
	PreviewURL        *string    `json:"preview_url,omitempty"`
	Status            string     `json:"status"`
	ScheduledFor      *time.Time `json:"scheduled_for,omitempty"`
	AttemptCount      int        `json:"attempt_count"`
	SiteCheckAttempts int        `json:"site_check_attempts"`
	SiteCheckNextAt   *time.Time `json:"site_check_next_at,omitempty"`
	LastError         *string    `json:"last_error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
}

// TargetURL resolves the destination: the operator override wins.
func (d *Delivery) TargetURL() string {
	if d.OverrideTargetURL != nil && *d.OverrideTargetURL != "" {
		return *d.OverrideTargetURL
	}
	return d.DefaultTargetURL
}

// Store wraps a PostgreSQL connection pool
type Store struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, clock: clock.C}
}

// NewWithClock wraps an existing pool with an injected clock, for tests.
func NewWithClock(pool *pgxpool.Pool, c clock.Clock) *Store {
	return &Store{pool: pool, clock: c}
}

// Close closes the connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const deliveryColumns = `id, job_id, client_name, payload_ref, default_target_url,
	override_target_url, preview_url, status, scheduled_for, attempt_count,
	site_check_attempts, site_check_next_at, last_error, created_at, updated_at, sent_at`

func scanDelivery(row pgx.Row) (*Delivery, error) {
	var d Delivery
	err := row.Scan(
		&d.ID, &d.JobID, &d.ClientName, &d.PayloadRef, &d.DefaultTargetURL,
		&d.OverrideTargetURL, &d.PreviewURL, &d.Status, &d.ScheduledFor, &d.AttemptCount,
		&d.SiteCheckAttempts, &d.SiteCheckNextAt, &d.LastError, &d.CreatedAt, &d.UpdatedAt, &d.SentAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// EnqueueParams describes the record created (or refreshed) at job completion.
type EnqueueParams struct {
	JobID            string
	ClientName       string
	PayloadRef       string
	DefaultTargetURL string
	PreviewURL       string
	Status           string
	ScheduledFor     *time.Time
}

// Enqueue upserts the delivery record for a job. Re-enqueue on resume or
// retry refreshes the payload reference and resets the record to a sendable
// (or waiting) status; attempt counters survive for audit.
func (s *Store) Enqueue(ctx context.Context, p EnqueueParams) (*Delivery, error) {
	if p.Status == "" {
		p.Status = StatusCompletedPendingSend
	}
	now := s.clock.Now().UTC()

	var preview *string
	if p.PreviewURL != "" {
		preview = &p.PreviewURL
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO delivery_outbox
		   (id, job_id, client_name, payload_ref, default_target_url, preview_url,
		    status, scheduled_for, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 ON CONFLICT (job_id) DO UPDATE SET
		   client_name = $3, payload_ref = $4, default_target_url = $5,
		   preview_url = $6, status = $7, scheduled_for = $8,
		   last_error = NULL, sent_at = NULL, updated_at = $9
		 RETURNING `+deliveryColumns,
		uuid.New(), p.JobID, p.ClientName, p.PayloadRef, p.DefaultTargetURL, preview,
		p.Status, p.ScheduledFor, now,
	)
	d, err := scanDelivery(row)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue delivery for job %s: %w", p.JobID, err)
	}
	return d, nil
}

// Get retrieves a delivery record by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	d, err := scanDelivery(s.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM delivery_outbox WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	return d, nil
}

// GetByJobID retrieves the delivery record for a job.
func (s *Store) GetByJobID(ctx context.Context, jobID string) (*Delivery, error) {
	d, err := scanDelivery(s.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM delivery_outbox WHERE job_id = $1`, jobID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get delivery for job %s: %w", jobID, err)
	}
	return d, nil
}

// Filters holds optional filters for listing deliveries
type Filters struct {
	Status string
	Client string
	Limit  int
	Offset int
}

// List retrieves delivery records with optional filters
func (s *Store) List(ctx context.Context, filters Filters) ([]*Delivery, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}

	query := `SELECT ` + deliveryColumns + ` FROM delivery_outbox WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}
	if filters.Client != "" {
		query += fmt.Sprintf(" AND client_name ILIKE $%d", argNum)
		args = append(args, "%"+filters.Client+"%")
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

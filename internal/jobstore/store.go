// Package jobstore provides the Redis-backed job state store: status,
// progress, log tail, counters and queue ordering for every tracked job.
package jobstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/gomodule/redigo/redis"
)

// Job statuses. Transitions are monotone within a run except for the
// explicit queued/paused/running cycle; canceled, completed and failed are
// terminal.
const (
	StatusQueued    = "queued"
	StatusStarting  = "starting"
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCanceled  = "canceled"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Counter names tracked per job.
const (
	CounterPagesTotal   = "pages_total"
	CounterPagesDone    = "pages_done"
	CounterPagesFailed  = "pages_failed"
	CounterPagesSkipped = "pages_skipped"
)

const (
	indexKey    = "jobs:index"
	inactiveKey = "jobs:inactive"

	// Live logs are trimmed so one noisy job can't grow without bound.
	maxLiveLogLines = 1000
)

// IsTerminal reports whether a status ends the job's lifecycle.
func IsTerminal(status string) bool {
	switch status {
	case StatusCanceled, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Options configures retention behavior of a Store.
type Options struct {
	JobTTL             time.Duration
	CompletedRetention time.Duration
	MonthlyLogKeep     time.Duration
	ArchiveLogLines    int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.JobTTL == 0 {
		out.JobTTL = 24 * time.Hour
	}
	if out.CompletedRetention == 0 {
		out.CompletedRetention = 12 * time.Hour
	}
	if out.MonthlyLogKeep == 0 {
		out.MonthlyLogKeep = 365 * 24 * time.Hour
	}
	if out.ArchiveLogLines == 0 {
		out.ArchiveLogLines = 200
	}
	return out
}

// Store wraps a Redis connection pool. All operations take one connection
// from the pool and return it when done; no state is shared in memory.
type Store struct {
	pool  *redis.Pool
	opts  Options
	clock clock.Clock
}

// NewPool creates a standalone Redis connection pool for the given URL.
func NewPool(redisURL string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(redisURL)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// New creates a Store over an existing pool.
func New(pool *redis.Pool, opts Options) *Store {
	return &Store{pool: pool, opts: opts.withDefaults(), clock: clock.C}
}

// NewWithClock is New with an injected clock, for tests.
func NewWithClock(pool *redis.Pool, opts Options, clk clock.Clock) *Store {
	return &Store{pool: pool, opts: opts.withDefaults(), clock: clk}
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping verifies the Redis connection.
func (s *Store) Ping() error {
	conn := s.pool.Get()
	defer conn.Close()
	_, err := conn.Do("PING")
	return err
}

func key(jobID, field string) string {
	return fmt.Sprintf("job:%s:%s", jobID, field)
}

func monthKey(ts time.Time) string {
	return ts.UTC().Format("2006-01")
}

func (s *Store) ttlSeconds() int {
	return int(s.opts.JobTTL / time.Second)
}

// Register adds a job to the ordered index with its creation time as the
// ordering score.
func (s *Store) Register(jobID string) error {
	conn := s.pool.Get()
	defer conn.Close()

	ts := s.clock.Now().Unix()
	if err := conn.Send("ZADD", indexKey, ts, jobID); err != nil {
		return fmt.Errorf("failed to register job: %w", err)
	}
	if err := conn.Send("EXPIRE", indexKey, s.ttlSeconds()); err != nil {
		return fmt.Errorf("failed to register job: %w", err)
	}
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("failed to register job: %w", err)
	}
	return nil
}

// List returns up to limit job ids in queue order. With newestFirst the
// highest ordering scores come first. Expired inactive jobs are purged on
// the way so listings don't show ghosts.
func (s *Store) List(limit int, newestFirst bool) ([]string, error) {
	if _, err := s.PurgeInactive(); err != nil {
		return nil, err
	}

	conn := s.pool.Get()
	defer conn.Close()

	cmd := "ZRANGE"
	if newestFirst {
		cmd = "ZREVRANGE"
	}
	ids, err := redis.Strings(conn.Do(cmd, indexKey, 0, limit-1))
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return ids, nil
}

// SetStatus stores the job status. Terminal statuses additionally move the
// job into the inactive index, archive a compact snapshot under the
// completion month and shorten the TTL of the job's keys.
func (s *Store) SetStatus(jobID, status string) error {
	conn := s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("SET", key(jobID, "status"), status, "EX", s.ttlSeconds()); err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	if !IsTerminal(status) {
		return nil
	}

	now := s.clock.Now()
	if _, err := conn.Do("ZADD", inactiveKey, now.Unix(), jobID); err != nil {
		return fmt.Errorf("failed to index inactive job: %w", err)
	}
	if _, err := conn.Do("EXPIRE", inactiveKey, s.ttlSeconds()); err != nil {
		return fmt.Errorf("failed to index inactive job: %w", err)
	}
	if err := s.archiveSnapshot(conn, jobID, status, now); err != nil {
		return err
	}

	retention := int(s.opts.CompletedRetention / time.Second)
	for _, field := range terminalFields() {
		if _, err := conn.Do("EXPIRE", key(jobID, field), retention); err != nil {
			return fmt.Errorf("failed to shorten ttl: %w", err)
		}
	}
	return nil
}

func terminalFields() []string {
	return []string{
		"status", "result", "progress", "log", "payload",
		"ctr:" + CounterPagesTotal,
		"ctr:" + CounterPagesDone,
		"ctr:" + CounterPagesFailed,
		"ctr:" + CounterPagesSkipped,
	}
}

// Status returns the job status, or "" when the job is unknown or expired.
func (s *Store) Status(jobID string) (string, error) {
	conn := s.pool.Get()
	defer conn.Close()

	status, err := redis.String(conn.Do("GET", key(jobID, "status")))
	if err == redis.ErrNil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get status: %w", err)
	}
	return status, nil
}

// SetResult stores the job result as compact JSON.
func (s *Store) SetResult(jobID string, result any) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	conn := s.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("SET", key(jobID, "result"), body, "EX", s.ttlSeconds()); err != nil {
		return fmt.Errorf("failed to set result: %w", err)
	}
	return nil
}

// Result returns the stored result JSON, or nil when absent.
func (s *Store) Result(jobID string) (json.RawMessage, error) {
	conn := s.pool.Get()
	defer conn.Close()

	raw, err := redis.Bytes(conn.Do("GET", key(jobID, "result")))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return json.RawMessage(raw), nil
}

// MergeProgress merges the patch into the stored progress object. Fields
// absent from the patch keep their previous values.
func (s *Store) MergeProgress(jobID string, patch map[string]any) error {
	cur, err := s.Progress(jobID)
	if err != nil {
		return err
	}
	if cur == nil {
		cur = map[string]any{}
	}
	for k, v := range patch {
		cur[k] = v
	}

	body, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	conn := s.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("SET", key(jobID, "progress"), body, "EX", s.ttlSeconds()); err != nil {
		return fmt.Errorf("failed to set progress: %w", err)
	}
	return nil
}

// SetProgress replaces the stored progress object.
func (s *Store) SetProgress(jobID string, progress map[string]any) error {
	body, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	conn := s.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("SET", key(jobID, "progress"), body, "EX", s.ttlSeconds()); err != nil {
		return fmt.Errorf("failed to set progress: %w", err)
	}
	return nil
}

// Progress returns the stored progress object, or nil when absent.
func (s *Store) Progress(jobID string) (map[string]any, error) {
	conn := s.pool.Get()
	defer conn.Close()

	raw, err := redis.Bytes(conn.Do("GET", key(jobID, "progress")))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil
	}
	return out, nil
}

// AppendLog appends a formatted log line to the job's log tail.
func (s *Store) AppendLog(jobID, line string) error {
	conn := s.pool.Get()
	defer conn.Close()

	k := key(jobID, "log")
	if err := conn.Send("RPUSH", k, line); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	if err := conn.Send("LTRIM", k, -maxLiveLogLines, -1); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	if err := conn.Send("EXPIRE", k, s.ttlSeconds()); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// LogTail returns up to limit most recent log lines, oldest first.
func (s *Store) LogTail(jobID string, limit int) ([]string, error) {
	conn := s.pool.Get()
	defer conn.Close()

	lines, err := redis.Strings(conn.Do("LRANGE", key(jobID, "log"), -limit, -1))
	if err != nil {
		return nil, fmt.Errorf("failed to get log tail: %w", err)
	}
	return lines, nil
}

// IncrCounter increments a per-job counter and returns the new value.
func (s *Store) IncrCounter(jobID, name string, amount int) (int, error) {
	conn := s.pool.Get()
	defer conn.Close()

	k := key(jobID, "ctr:"+name)
	val, err := redis.Int(conn.Do("INCRBY", k, amount))
	if err != nil {
		return 0, fmt.Errorf("failed to incr counter: %w", err)
	}
	if _, err := conn.Do("EXPIRE", k, s.ttlSeconds()); err != nil {
		return 0, fmt.Errorf("failed to incr counter: %w", err)
	}
	return val, nil
}

// SetCounter overwrites a per-job counter.
func (s *Store) SetCounter(jobID, name string, value int) error {
	conn := s.pool.Get()
	defer conn.Close()

	k := key(jobID, "ctr:"+name)
	if _, err := conn.Do("SET", k, value, "EX", s.ttlSeconds()); err != nil {
		return fmt.Errorf("failed to set counter: %w", err)
	}
	return nil
}

// Counter returns a per-job counter, 0 when absent.
func (s *Store) Counter(jobID, name string) (int, error) {
	conn := s.pool.Get()
	defer conn.Close()

	val, err := redis.Int(conn.Do("GET", key(jobID, "ctr:"+name)))
	if err == redis.ErrNil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}
	return val, nil
}

// SetPayload stores the intake payload so a paused job can be resumed with
// a full re-run.
func (s *Store) SetPayload(jobID string, payload json.RawMessage) error {
	conn := s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("SET", key(jobID, "payload"), []byte(payload), "EX", s.ttlSeconds()); err != nil {
		return fmt.Errorf("failed to set payload: %w", err)
	}
	return nil
}

// Payload returns the stored intake payload, or nil when absent.
func (s *Store) Payload(jobID string) (json.RawMessage, error) {
	conn := s.pool.Get()
	defer conn.Close()

	raw, err := redis.Bytes(conn.Do("GET", key(jobID, "payload")))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payload: %w", err)
	}
	return json.RawMessage(raw), nil
}

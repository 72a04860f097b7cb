package jobstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Snapshot is the compact archival record kept for a terminal job after its
// live keys expire. Snapshots are grouped into monthly lists for long-term
// audit.
type Snapshot struct {
	JobID      string         `json:"job_id"`
	Status     string         `json:"status"`
	FinishedAt string         `json:"finished_at_utc"`
	Progress   map[string]any `json:"progress"`
	Counters   map[string]int `json:"counters"`
	LogTail    []string       `json:"log_tail"`
}

func monthlyKey(month string) string {
	return "queue_logs:" + month
}

func (s *Store) archiveSnapshot(conn redis.Conn, jobID, status string, finished time.Time) error {
	prog, err := s.Progress(jobID)
	if err != nil {
		return err
	}
	logs, err := s.LogTail(jobID, s.opts.ArchiveLogLines)
	if err != nil {
		return err
	}

	counters := map[string]int{}
	for _, name := range []string{CounterPagesTotal, CounterPagesDone, CounterPagesFailed, CounterPagesSkipped} {
		v, err := s.Counter(jobID, name)
		if err != nil {
			return err
		}
		counters[name] = v
	}

	snap := Snapshot{
		JobID:      jobID,
		Status:     status,
		FinishedAt: finished.UTC().Format(time.RFC3339),
		Progress:   prog,
		Counters:   counters,
		LogTail:    logs,
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	k := monthlyKey(monthKey(finished))
	if err := conn.Send("RPUSH", k, body); err != nil {
		return fmt.Errorf("failed to archive snapshot: %w", err)
	}
	if err := conn.Send("EXPIRE", k, int(s.opts.MonthlyLogKeep/time.Second)); err != nil {
		return fmt.Errorf("failed to archive snapshot: %w", err)
	}
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("failed to archive snapshot: %w", err)
	}
	return nil
}

// MonthlySnapshots returns the archived snapshots for a month ("2026-08").
func (s *Store) MonthlySnapshots(month string) ([]Snapshot, error) {
	conn := s.pool.Get()
	defer conn.Close()

	raws, err := redis.ByteSlices(conn.Do("LRANGE", monthlyKey(month), 0, -1))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read monthly snapshots: %w", err)
	}

	var out []Snapshot
	for _, raw := range raws {
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// ClearMonthlySnapshots drops a month's archive list, typically after it
// has been uploaded to long-term storage.
func (s *Store) ClearMonthlySnapshots(month string) error {
	conn := s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("DEL", monthlyKey(month)); err != nil {
		return fmt.Errorf("failed to clear monthly snapshots: %w", err)
	}
	return nil
}

// PurgeInactive removes jobs whose terminal time is older than the
// completed-retention window: they leave both indexes and their remaining
// keys are deleted. Returns the number of purged jobs.
func (s *Store) PurgeInactive() (int, error) {
	conn := s.pool.Get()
	defer conn.Close()

	cutoff := s.clock.Now().Add(-s.opts.CompletedRetention).Unix()
	ids, err := redis.Strings(conn.Do("ZRANGEBYSCORE", inactiveKey, 0, cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to scan inactive jobs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	remArgs := redis.Args{}.Add(inactiveKey).AddFlat(ids)
	if _, err := conn.Do("ZREM", remArgs...); err != nil {
		return 0, fmt.Errorf("failed to purge inactive jobs: %w", err)
	}
	idxArgs := redis.Args{}.Add(indexKey).AddFlat(ids)
	if _, err := conn.Do("ZREM", idxArgs...); err != nil {
		return 0, fmt.Errorf("failed to purge inactive jobs: %w", err)
	}

	var keys []any
	for _, id := range ids {
		for _, field := range terminalFields() {
			keys = append(keys, key(id, field))
		}
		keys = append(keys, key(id, "paused"), key(id, "canceled"))
	}
	if _, err := conn.Do("DEL", keys...); err != nil {
		return 0, fmt.Errorf("failed to purge inactive jobs: %w", err)
	}
	return len(ids), nil
}

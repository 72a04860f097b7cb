package jobstore

import (
	"fmt"

	"github.com/gomodule/redigo/redis"
)

// Reorder directions.
const (
	MoveTop    = "top"
	MoveUp     = "up"
	MoveDown   = "down"
	MoveBottom = "bottom"
)

// claimScript performs the conditional queued -> starting transition. Only
// one caller can observe the queued status, so concurrent workers never
// double-claim a job.
var claimScript = redis.NewScript(1, `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
  return 1
end
return 0
`)

// ClaimQueued atomically transitions a queued job to starting. Returns
// false when the job is not queued (already claimed, paused, gone).
func (s *Store) ClaimQueued(jobID string) (bool, error) {
	conn := s.pool.Get()
	defer conn.Close()

	n, err := redis.Int(claimScript.Do(conn, key(jobID, "status"), StatusQueued, StatusStarting, s.ttlSeconds()))
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	return n == 1, nil
}

// Pause requests a pause. Allowed while the job is queued, starting or
// running; the running pipeline observes the flag at its next checkpoint.
func (s *Store) Pause(jobID string) (bool, error) {
	status, err := s.Status(jobID)
	if err != nil {
		return false, err
	}
	switch status {
	case StatusQueued, StatusStarting, StatusRunning:
	default:
		return false, nil
	}

	conn := s.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("SET", key(jobID, "paused"), "1", "EX", s.ttlSeconds()); err != nil {
		return false, fmt.Errorf("failed to pause job: %w", err)
	}
	// A queued job pauses immediately; a running one pauses at the next
	// checkpoint.
	if status == StatusQueued {
		if err := s.SetStatus(jobID, StatusPaused); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Resume clears the pause flag and requeues the job for a full re-run from
// its stored payload. Only legal while paused.
func (s *Store) Resume(jobID string) (bool, error) {
	status, err := s.Status(jobID)
	if err != nil {
		return false, err
	}
	if status != StatusPaused {
		return false, nil
	}

	conn := s.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("DEL", key(jobID, "paused")); err != nil {
		return false, fmt.Errorf("failed to resume job: %w", err)
	}
	if err := s.SetStatus(jobID, StatusQueued); err != nil {
		return false, err
	}
	return true, nil
}

// Cancel requests cancellation. Allowed from any non-terminal status;
// a job that is not currently running is marked canceled immediately, a
// running one observes the flag at its next checkpoint.
func (s *Store) Cancel(jobID string) (bool, error) {
	status, err := s.Status(jobID)
	if err != nil {
		return false, err
	}
	if status == "" || IsTerminal(status) {
		return false, nil
	}

	conn := s.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("SET", key(jobID, "canceled"), "1", "EX", s.ttlSeconds()); err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}
	if status == StatusQueued || status == StatusPaused {
		if err := s.SetStatus(jobID, StatusCanceled); err != nil {
			return false, err
		}
	}
	return true, nil
}

// IsPaused reports the pause flag.
func (s *Store) IsPaused(jobID string) (bool, error) {
	return s.flag(jobID, "paused")
}

// IsCanceled reports the cancel flag.
func (s *Store) IsCanceled(jobID string) (bool, error) {
	return s.flag(jobID, "canceled")
}

func (s *Store) flag(jobID, field string) (bool, error) {
	conn := s.pool.Get()
	defer conn.Close()

	v, err := redis.String(conn.Do("GET", key(jobID, field)))
	if err == redis.ErrNil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s flag: %w", field, err)
	}
	return v == "1", nil
}

// Reorder changes the job's position in the queue by mutating its ordering
// score. Only legal while the job is queued or paused. Up/down swap scores
// with the adjacent job and are no-ops at the respective boundary. This is
// a read-modify-write over the whole index; reordering is a rare operator
// action, not a hot path.
func (s *Store) Reorder(jobID, direction string) (bool, error) {
	status, err := s.Status(jobID)
	if err != nil {
		return false, err
	}
	if status != StatusQueued && status != StatusPaused {
		return false, nil
	}

	conn := s.pool.Get()
	defer conn.Close()

	entries, err := redis.Strings(conn.Do("ZRANGE", indexKey, 0, -1, "WITHSCORES"))
	if err != nil {
		return false, fmt.Errorf("failed to read job index: %w", err)
	}

	type member struct {
		id    string
		score float64
	}
	var members []member
	for i := 0; i+1 < len(entries); i += 2 {
		var score float64
		if _, err := fmt.Sscanf(entries[i+1], "%g", &score); err != nil {
			continue
		}
		members = append(members, member{id: entries[i], score: score})
	}

	idx := -1
	for i, m := range members {
		if m.id == jobID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	switch direction {
	case MoveTop:
		if idx == 0 {
			return true, nil
		}
		newScore := members[0].score - 1
		if _, err := conn.Do("ZADD", indexKey, newScore, jobID); err != nil {
			return false, fmt.Errorf("failed to reorder job: %w", err)
		}
	case MoveBottom:
		if idx == len(members)-1 {
			return true, nil
		}
		newScore := members[len(members)-1].score + 1
		if _, err := conn.Do("ZADD", indexKey, newScore, jobID); err != nil {
			return false, fmt.Errorf("failed to reorder job: %w", err)
		}
	case MoveUp, MoveDown:
		other := idx - 1
		if direction == MoveDown {
			other = idx + 1
		}
		if other < 0 || other >= len(members) {
			// Already at the boundary.
			return true, nil
		}
		if err := conn.Send("ZADD", indexKey, members[other].score, jobID); err != nil {
			return false, fmt.Errorf("failed to reorder job: %w", err)
		}
		if err := conn.Send("ZADD", indexKey, members[idx].score, members[other].id); err != nil {
			return false, fmt.Errorf("failed to reorder job: %w", err)
		}
		if err := conn.Flush(); err != nil {
			return false, fmt.Errorf("failed to reorder job: %w", err)
		}
	default:
		return false, fmt.Errorf("unknown reorder direction %q", direction)
	}
	return true, nil
}

// OrderScore returns the job's current ordering score. Exposed for tests
// and diagnostics.
func (s *Store) OrderScore(jobID string) (float64, bool, error) {
	conn := s.pool.Get()
	defer conn.Close()

	score, err := redis.Float64(conn.Do("ZSCORE", indexKey, jobID))
	if err == redis.ErrNil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read order score: %w", err)
	}
	return score, true, nil
}

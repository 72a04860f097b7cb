package jobstore

import (
	"testing"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, *clock.MockClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	mock := clock.NewMockClock()
	store := NewWithClock(NewPool("redis://"+mr.Addr()), Options{}, mock)
	t.Cleanup(func() { store.Close() })
	return store, mr, mock
}

func TestRegisterAndListOrder(t *testing.T) {
	store, _, mock := newTestStore(t)

	require.NoError(t, store.Register("job-a"))
	mock.AddTime(time.Second)
	require.NoError(t, store.Register("job-b"))
	mock.AddTime(time.Second)
	require.NoError(t, store.Register("job-c"))

	ids, err := store.List(10, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-a", "job-b", "job-c"}, ids)

	ids, err = store.List(10, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-c", "job-b", "job-a"}, ids)

	ids, err = store.List(2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-a", "job-b"}, ids)
}

func TestStatusRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t)

	status, err := store.Status("nope")
	require.NoError(t, err)
	assert.Equal(t, "", status, "unknown jobs read as empty status")

	require.NoError(t, store.Register("job-1"))
	require.NoError(t, store.SetStatus("job-1", StatusQueued))

	status, err = store.Status("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, status)
}

func TestTerminalStatusArchivesAndShortensTTL(t *testing.T) {
	store, mr, mock := newTestStore(t)

	require.NoError(t, store.Register("job-1"))
	require.NoError(t, store.SetStatus("job-1", StatusRunning))
	require.NoError(t, store.MergeProgress("job-1", map[string]any{"stage": "copy"}))
	require.NoError(t, store.AppendLog("job-1", "[I] page /about done"))
	_, err := store.IncrCounter("job-1", CounterPagesDone, 3)
	require.NoError(t, err)

	require.NoError(t, store.SetStatus("job-1", StatusCompleted))

	// Moved to the inactive index.
	assert.True(t, mr.Exists("jobs:inactive"))

	// Snapshot archived under the completion month.
	month := mock.Now().UTC().Format("2006-01")
	snaps, err := store.MonthlySnapshots(month)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "job-1", snaps[0].JobID)
	assert.Equal(t, StatusCompleted, snaps[0].Status)
	assert.Equal(t, 3, snaps[0].Counters[CounterPagesDone])
	assert.Equal(t, "copy", snaps[0].Progress["stage"])
	require.Len(t, snaps[0].LogTail, 1)

	// Retention TTL is shorter than the live TTL.
	ttl := mr.TTL("job:job-1:status")
	assert.LessOrEqual(t, ttl, 12*time.Hour)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestMergeProgressMerges(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.MergeProgress("job-1", map[string]any{"stage": "sitemap", "pages_total": 5}))
	require.NoError(t, store.MergeProgress("job-1", map[string]any{"stage": "copy", "pages_done": 2}))

	prog, err := store.Progress("job-1")
	require.NoError(t, err)
	assert.Equal(t, "copy", prog["stage"])
	assert.EqualValues(t, 5, prog["pages_total"], "untouched fields survive a merge")
	assert.EqualValues(t, 2, prog["pages_done"])
}

func TestAppendLogBoundAndTail(t *testing.T) {
	store, _, _ := newTestStore(t)

	for i := 0; i < 1100; i++ {
		require.NoError(t, store.AppendLog("job-1", "[I] line"))
	}

	tail, err := store.LogTail("job-1", 2000)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(tail), 1000, "log list is bounded")

	tail, err = store.LogTail("job-1", 5)
	require.NoError(t, err)
	assert.Len(t, tail, 5)
}

func TestCounters(t *testing.T) {
	store, _, _ := newTestStore(t)

	v, err := store.Counter("job-1", CounterPagesDone)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	v, err = store.IncrCounter("job-1", CounterPagesDone, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, store.SetCounter("job-1", CounterPagesDone, 7))
	v, err = store.Counter("job-1", CounterPagesDone)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestResultAndPayloadRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.SetResult("job-1", map[string]any{"pages_done": 4}))
	result, err := store.Result("job-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pages_done": 4}`, string(result))

	require.NoError(t, store.SetPayload("job-1", []byte(`{"client_name":"Acme"}`)))
	payload, err := store.Payload("job-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"client_name":"Acme"}`, string(payload))
}

func TestPurgeInactive(t *testing.T) {
	store, mr, mock := newTestStore(t)

	require.NoError(t, store.Register("job-old"))
	require.NoError(t, store.SetStatus("job-old", StatusCompleted))

	// Within retention: nothing purged.
	n, err := store.PurgeInactive()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	mock.AddTime(13 * time.Hour)
	n, err = store.PurgeInactive()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.False(t, mr.Exists("job:job-old:status"))
	ids, err := store.List(10, false)
	require.NoError(t, err)
	assert.NotContains(t, ids, "job-old")
}

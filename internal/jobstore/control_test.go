package jobstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimQueued(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.Register("job-1"))
	require.NoError(t, store.SetStatus("job-1", StatusQueued))

	won, err := store.ClaimQueued("job-1")
	require.NoError(t, err)
	assert.True(t, won)

	status, err := store.Status("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusStarting, status)

	// A second claimant finds the job already starting.
	won, err = store.ClaimQueued("job-1")
	require.NoError(t, err)
	assert.False(t, won)

	// Unknown jobs are not claimable.
	won, err = store.ClaimQueued("job-missing")
	require.NoError(t, err)
	assert.False(t, won)
}

func TestPauseQueuedJobPausesImmediately(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.Register("job-1"))
	require.NoError(t, store.SetStatus("job-1", StatusQueued))

	ok, err := store.Pause("job-1")
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := store.Status("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, status)

	paused, err := store.IsPaused("job-1")
	require.NoError(t, err)
	assert.True(t, paused)
}

func TestPauseRunningJobOnlySetsFlag(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.SetStatus("job-1", StatusRunning))

	ok, err := store.Pause("job-1")
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := store.Status("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status, "the pipeline pauses itself at its next checkpoint")

	paused, err := store.IsPaused("job-1")
	require.NoError(t, err)
	assert.True(t, paused)
}

func TestPauseDisallowedFromTerminal(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.SetStatus("job-1", StatusCompleted))

	ok, err := store.Pause("job-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResumeOnlyFromPaused(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.SetStatus("job-1", StatusRunning))
	ok, err := store.Resume("job-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetStatus("job-1", StatusPaused))

	ok, err = store.Resume("job-1")
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := store.Status("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, status)

	paused, err := store.IsPaused("job-1")
	require.NoError(t, err)
	assert.False(t, paused, "resume clears the pause flag")
}

func TestCancel(t *testing.T) {
	store, _, _ := newTestStore(t)

	// Queued jobs cancel immediately.
	require.NoError(t, store.Register("job-q"))
	require.NoError(t, store.SetStatus("job-q", StatusQueued))
	ok, err := store.Cancel("job-q")
	require.NoError(t, err)
	assert.True(t, ok)
	status, err := store.Status("job-q")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, status)

	// Running jobs only get the flag.
	require.NoError(t, store.SetStatus("job-r", StatusRunning))
	ok, err = store.Cancel("job-r")
	require.NoError(t, err)
	assert.True(t, ok)
	status, err = store.Status("job-r")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)
	canceled, err := store.IsCanceled("job-r")
	require.NoError(t, err)
	assert.True(t, canceled)

	// Terminal jobs cannot be canceled again.
	ok, err = store.Cancel("job-q")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown jobs cannot be canceled.
	ok, err = store.Cancel("job-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func registerQueue(t *testing.T, store *Store, mock interface{ AddTime(time.Duration) }, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, store.Register(id))
		require.NoError(t, store.SetStatus(id, StatusQueued))
		mock.AddTime(time.Second)
	}
}

func TestReorder(t *testing.T) {
	store, _, mock := newTestStore(t)
	registerQueue(t, store, mock, "job-a", "job-b", "job-c")

	ok, err := store.Reorder("job-c", MoveTop)
	require.NoError(t, err)
	assert.True(t, ok)
	ids, err := store.List(10, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-c", "job-a", "job-b"}, ids)

	ok, err = store.Reorder("job-c", MoveBottom)
	require.NoError(t, err)
	assert.True(t, ok)
	ids, err = store.List(10, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-a", "job-b", "job-c"}, ids)

	ok, err = store.Reorder("job-b", MoveUp)
	require.NoError(t, err)
	assert.True(t, ok)
	ids, err = store.List(10, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-b", "job-a", "job-c"}, ids)

	ok, err = store.Reorder("job-a", MoveDown)
	require.NoError(t, err)
	assert.True(t, ok)
	ids, err = store.List(10, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-b", "job-c", "job-a"}, ids)
}

func TestReorderBoundariesAreNoops(t *testing.T) {
	store, _, mock := newTestStore(t)
	registerQueue(t, store, mock, "job-a", "job-b")

	for _, tc := range []struct{ id, dir string }{
		{"job-a", MoveUp},
		{"job-a", MoveTop},
		{"job-b", MoveDown},
		{"job-b", MoveBottom},
	} {
		ok, err := store.Reorder(tc.id, tc.dir)
		require.NoError(t, err)
		assert.True(t, ok, "%s %s", tc.id, tc.dir)
	}

	ids, err := store.List(10, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-a", "job-b"}, ids)
}

func TestReorderDisallowedWhileRunning(t *testing.T) {
	store, _, mock := newTestStore(t)
	registerQueue(t, store, mock, "job-a", "job-b")
	require.NoError(t, store.SetStatus("job-a", StatusRunning))

	ok, err := store.Reorder("job-a", MoveBottom)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReorderUnknownDirection(t *testing.T) {
	store, _, mock := newTestStore(t)
	registerQueue(t, store, mock, "job-a")

	_, err := store.Reorder("job-a", "sideways")
	assert.Error(t, err)
}

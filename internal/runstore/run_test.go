package runstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/sandbox-gateway/internal/objectstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	objs, err := objectstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return New(objs)
}

func seedRun(t *testing.T, store *Store, id, sessionID string, status Status, startedAt int64) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), &Run{
		RunID: id, SessionID: sessionID, WorkflowID: id, Status: status,
		Task: "t", Model: "m", StartedAt: startedAt,
	}))
}

func TestCompleteRunIsTerminalOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedRun(t, store, "run-aaaa1111", "s1", StatusStarted, 100)

	require.NoError(t, store.CompleteRun(ctx, "run-aaaa1111", CompleteParams{Success: true, Output: "done"}))

	run, err := store.Get(ctx, "run-aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.True(t, run.CompletedAt > run.StartedAt)

	err = store.CompleteRun(ctx, "run-aaaa1111", CompleteParams{Success: false, Error: "late failure"})
	assert.Error(t, err)
}

func TestListRunsFilterFidelity(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedRun(t, store, "run-a", "X", StatusCompleted, 100)
	seedRun(t, store, "run-b", "Y", StatusFailed, 200)
	seedRun(t, store, "run-c", "X", StatusCompleted, 300)

	res, err := store.ListRuns(ctx, ListFilter{SessionID: "X"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, "run-c", res.Entries[0].RunID)
	assert.Equal(t, "run-a", res.Entries[1].RunID)
}

func TestListRunsStatusLimitAndBefore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedRun(t, store, "run-a", "s", StatusCompleted, 100)
	seedRun(t, store, "run-b", "s", StatusFailed, 200)
	seedRun(t, store, "run-c", "s", StatusCompleted, 300)

	res, err := store.ListRuns(ctx, ListFilter{Status: StatusCompleted, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, "run-c", res.Entries[0].RunID)

	res, err = store.ListRuns(ctx, ListFilter{Status: StatusCompleted, Limit: 1, Before: 300})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, "run-a", res.Entries[0].RunID)
}

func TestCascadeDeleteForSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedRun(t, store, "run-a", "X", StatusCompleted, 100)
	seedRun(t, store, "run-b", "Y", StatusCompleted, 200)

	require.NoError(t, store.DeleteRunsForSession(ctx, "X"))

	res, err := store.ListRuns(ctx, ListFilter{SessionID: "X"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)

	res, err = store.ListRuns(ctx, ListFilter{SessionID: "Y"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

func TestSweepStranded(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedRun(t, store, "run-old", "s", StatusStarted, 1) // epoch-adjacent, definitely "older"

	n, err := store.SweepStranded(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	run, err := store.Get(ctx, "run-old")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
}

package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/sandbox-gateway/internal/objectstore"
	"github.com/opencode-ai/sandbox-gateway/internal/runstore"
	"github.com/opencode-ai/sandbox-gateway/internal/sessionstore"
)

func newTestActivities(t *testing.T) *Activities {
	t.Helper()
	store, err := objectstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return &Activities{
		Runs:     runstore.New(store),
		Sessions: sessionstore.New(store),
		Objects:  store,
	}
}

func TestCreateRunWritesStartedRun(t *testing.T) {
	a := newTestActivities(t)
	params := TaskParams{RunID: "run-aaaa1111", SessionID: "ses00001", Task: "do stuff", Model: "claude", Title: "My Task"}

	require.NoError(t, a.CreateRun(context.Background(), params))

	run, err := a.Runs.Get(context.Background(), params.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, runstore.StatusStarted, run.Status)
	assert.Equal(t, "do stuff", run.Task)
}

func TestCompleteRunUpdatesRunAndSession(t *testing.T) {
	a := newTestActivities(t)
	params := TaskParams{RunID: "run-bbbb2222", SessionID: "ses00002", Task: "t", Model: "claude"}
	require.NoError(t, a.CreateRun(context.Background(), params))
	require.NoError(t, a.Sessions.Put(context.Background(), &sessionstore.Session{
		SessionID: params.SessionID,
		SandboxID: "sb1",
		Status:    sessionstore.StatusActive,
	}))

	result := TaskResult{Success: true, Output: "done", OpencodeSessionID: "ocs1", WorkspacePath: "/workspace/widgets"}
	require.NoError(t, a.CompleteRun(context.Background(), params, result))

	run, err := a.Runs.Get(context.Background(), params.RunID)
	require.NoError(t, err)
	assert.Equal(t, runstore.StatusCompleted, run.Status)

	sess, err := a.Sessions.Get(context.Background(), params.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "ocs1", sess.OpencodeSessionID)
	assert.Equal(t, "/workspace/widgets", sess.WorkspacePath)
}

func TestCompleteRunToleratesMissingSession(t *testing.T) {
	a := newTestActivities(t)
	params := TaskParams{RunID: "run-cccc3333", SessionID: "ses-gone", Task: "t", Model: "claude"}
	require.NoError(t, a.CreateRun(context.Background(), params))

	err := a.CompleteRun(context.Background(), params, TaskResult{Success: false, Error: "boom"})
	assert.NoError(t, err)
}

func TestRepoDirFromURL(t *testing.T) {
	assert.Equal(t, "widgets", repoDirFromURL("https://github.com/acme/widgets"))
	assert.Equal(t, "widgets", repoDirFromURL("https://github.com/acme/widgets.git"))
	assert.Equal(t, "", repoDirFromURL(""))
}

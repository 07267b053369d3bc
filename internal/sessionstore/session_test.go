package sessionstore

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

func TestValidSessionID(t *testing.T) {
	assert.True(t, ValidSessionID("a1b2c3d4"))
	assert.True(t, ValidSessionID("foo-bar-1"))
	assert.False(t, ValidSessionID("Foo"))
	assert.False(t, ValidSessionID("-foo"))
	assert.False(t, ValidSessionID("foo--bar"))
	assert.False(t, ValidSessionID(""))
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess := &Session{
		SessionID:     "abc12345",
		SandboxID:     "abc12345",
		CreatedAt:     100,
		LastActivity:  100,
		Status:        StatusActive,
		WorkspacePath: "/workspace",
		Config:        SessionConfig{DefaultModel: "anthropic/claude-sonnet-4"},
	}
	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, "abc12345")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.Status, got.Status)

	missing, err := store.Get(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIndexConsistencyAfterPutAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess := &Session{
		SessionID: "aaaaaaaa", SandboxID: "aaaaaaaa", CreatedAt: 1, LastActivity: 1,
		Status: StatusActive, WorkspacePath: "/workspace",
	}
	require.NoError(t, store.Put(ctx, sess))

	list, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, "aaaaaaaa", list.Entries[0].SessionID)

	require.NoError(t, store.Delete(ctx, "aaaaaaaa"))
	list, err = store.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, list.Total)
}

func TestAddClonedRepoIsASet(t *testing.T) {
	sess := &Session{}
	AddClonedRepo(sess, "https://github.com/u/r")
	AddClonedRepo(sess, "https://github.com/u/r")
	AddClonedRepo(sess, "https://github.com/u/r2")
	assert.Equal(t, []string{"https://github.com/u/r", "https://github.com/u/r2"}, sess.ClonedRepos)
}

func TestPutRejectsInvalidSessionID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	err := store.Put(ctx, &Session{SessionID: "Invalid_ID", Status: StatusActive})
	assert.Error(t, err)
}

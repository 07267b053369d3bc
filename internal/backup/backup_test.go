package backup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/sandbox-gateway/internal/objectstore"
	"github.com/opencode-ai/sandbox-gateway/internal/sandbox"
)

type fakeSandbox struct {
	files map[string][]byte
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{files: make(map[string][]byte)}
}

func (f *fakeSandbox) Exec(ctx context.Context, workDir, cmd string) (*sandbox.ExecResult, error) {
	if _, ok := f.files[archiveRemotePath]; !ok {
		f.files[archiveRemotePath] = []byte("fake-archive-bytes")
	}
	return &sandbox.ExecResult{ExitCode: 0}, nil
}

func (f *fakeSandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return f.files[path], nil
}

func (f *fakeSandbox) WriteFile(ctx context.Context, path string, body []byte) error {
	f.files[path] = body
	return nil
}

func TestTakeThenRestoreRoundTrip(t *testing.T) {
	store, err := objectstore.NewFSStore(t.TempDir())
	require.NoError(t, err)

	sb := newFakeSandbox()
	require.NoError(t, Take(context.Background(), sb, store, "ses1", "/workspace", ".opencode"))

	obj, err := store.Get(context.Background(), "sessions/ses1/opencode-storage.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "fake-archive-bytes", string(obj.Body))

	require.NoError(t, Restore(context.Background(), sb, store, "ses1", "/workspace"))
	assert.Equal(t, []byte("fake-archive-bytes"), sb.files[archiveRemotePath])
}

func TestRestoreIsNoOpWithoutPriorBackup(t *testing.T) {
	store, err := objectstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	sb := newFakeSandbox()

	err = Restore(context.Background(), sb, store, "ses-never-backed-up", "/workspace")
	assert.NoError(t, err)
}

func TestBuildAndExtractArchiveRoundTrip(t *testing.T) {
	files := map[string][]byte{
		"a.json": []byte(`{"a":1}`),
		"b.txt":  []byte("hello"),
	}
	archive, err := BuildArchive(files)
	require.NoError(t, err)

	extracted, err := ExtractArchive(archive)
	require.NoError(t, err)
	assert.Equal(t, files, extracted)
}

func TestEncodeDecodeChunkedRoundTrip(t *testing.T) {
	body := make([]byte, 500*1024)
	for i := range body {
		body[i] = byte(i % 251)
	}
	chunks := EncodeChunked(body)
	assert.Greater(t, len(chunks), 1)

	decoded, err := DecodeChunked(chunks)
	require.NoError(t, err)
	assert.Equal(t, body, decoded)
}

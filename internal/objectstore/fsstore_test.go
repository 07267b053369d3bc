package objectstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreGetPutDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, "sessions/abc.json")
	assert.ErrorIs(t, err, ErrNotFound)

	obj, err := store.Put(ctx, "sessions/abc.json", []byte(`{"a":1}`), PutOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, obj.ETag)

	got, err := store.Get(ctx, "sessions/abc.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got.Body))
	assert.Equal(t, obj.ETag, got.ETag)

	require.NoError(t, store.Delete(ctx, "sessions/abc.json"))
	_, err = store.Get(ctx, "sessions/abc.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStoreIfMatchETag(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	first, err := store.Put(ctx, "k", []byte("v1"), PutOptions{})
	require.NoError(t, err)

	_, err = store.Put(ctx, "k", []byte("v2"), PutOptions{IfMatchETag: "wrong"})
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	_, err = store.Put(ctx, "k", []byte("v2"), PutOptions{IfMatchETag: first.ETag})
	assert.NoError(t, err)
}

func TestFSStoreIfNoneMatch(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(ctx, "k", []byte("v1"), PutOptions{IfNoneMatch: true})
	require.NoError(t, err)

	_, err = store.Put(ctx, "k", []byte("v2"), PutOptions{IfNoneMatch: true})
	assert.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestUpdateIndexConvergesUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = UpdateIndex(ctx, store, "idx", func(current []byte, exists bool) ([]byte, error) {
				body := string(current)
				if !exists {
					body = ""
				}
				body += "x"
				return []byte(body), nil
			})
		}(i)
	}
	wg.Wait()

	obj, err := store.Get(ctx, "idx")
	require.NoError(t, err)
	assert.Len(t, obj.Body, n)
}

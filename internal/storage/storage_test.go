package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const abcHash = "a9993e364706816aba3e25717850c26c9cd0d89d"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestIngestStoresByHash(t *testing.T) {
	s := newTestStore(t)

	obj, err := s.Ingest(context.Background(), []byte("abc"))
	require.NoError(t, err)

	assert.Equal(t, abcHash, obj.Hash)
	assert.Equal(t, "a9/993e364706816aba3e25717850c26c9cd0d89d", obj.Path)
	assert.True(t, obj.IsNew)
	assert.EqualValues(t, 3, obj.Size)

	data, err := os.ReadFile(filepath.Join(s.Root(), "a9", "993e364706816aba3e25717850c26c9cd0d89d"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	info, err := os.Stat(filepath.Join(s.Root(), "a9"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm()&0o750)
	assert.Zero(t, info.Mode().Perm()&0o007, "shard must not be world accessible")
}

func TestIngestIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Ingest(ctx, []byte("abc"))
	require.NoError(t, err)
	full, err := s.Abs(first.Path)
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(full, old, old))

	second, err := s.Ingest(ctx, []byte("abc"))
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.Path, second.Path)
	assert.False(t, second.IsNew)

	info, err := os.Stat(full)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "existing object must not be rewritten")

	data, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestIngestDistinctContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.Ingest(ctx, []byte("abc"))
	require.NoError(t, err)
	b, err := s.Ingest(ctx, []byte("abd"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash, b.Hash)
	assert.NotEqual(t, a.Path, b.Path)
}

func TestIngestConcurrentSameContent(t *testing.T) {
	s := newTestStore(t)
	payload := []byte("same bytes from many uploaders")

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Ingest(context.Background(), payload)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	obj, err := s.Ingest(context.Background(), payload)
	require.NoError(t, err)
	assert.False(t, obj.IsNew)

	entries, err := os.ReadDir(filepath.Join(s.Root(), obj.Hash[:2]))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestIngestReportsStorageIO(t *testing.T) {
	s := newTestStore(t)
	// A regular file where the shard directory belongs.
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "a9"), []byte("x"), 0o600))

	_, err := s.Ingest(context.Background(), []byte("abc"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageIO))
}

func TestIngestHonorsCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Ingest(ctx, []byte("abc"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPathFor(t *testing.T) {
	p, err := PathFor("A9993E364706816ABA3E25717850C26C9CD0D89D")
	require.NoError(t, err)
	assert.Equal(t, "a9/993e364706816aba3e25717850c26c9cd0d89d", p)

	_, err = PathFor("xyz")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = PathFor("g9993e364706816aba3e25717850c26c9cd0d89d")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestAbsRejectsForeignPaths(t *testing.T) {
	s := newTestStore(t)

	for _, p := range []string{
		"../etc/passwd",
		"a9/../../993e364706816aba3e25717850c26c9cd0d89",
		"a9/993e364706816aba3e25717850c26c9cd0d89d.png",
		"a9993e364706816aba3e25717850c26c9cd0d89d",
		"",
	} {
		_, err := s.Abs(p)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", p)
	}
}

func TestExists(t *testing.T) {
	s := newTestStore(t)

	ok, err := s.Exists("a9/993e364706816aba3e25717850c26c9cd0d89d")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Ingest(context.Background(), []byte("abc"))
	require.NoError(t, err)

	ok, err = s.Exists("a9/993e364706816aba3e25717850c26c9cd0d89d")
	require.NoError(t, err)
	assert.True(t, ok)
}

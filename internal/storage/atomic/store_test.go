package atomic_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyfong/aiparserpipeline/internal/storage/atomic"
)

func newTestStore(t *testing.T) *atomic.Store {
	t.Helper()
	store, err := atomic.New(atomic.Config{BaseDir: t.TempDir()}, nil)
	require.NoError(t, err)
	return store
}

func TestNew(t *testing.T) {
	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "cache")
		_, err := atomic.New(atomic.Config{BaseDir: dir}, nil)
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := atomic.New(atomic.Config{}, nil)
		assert.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "afile")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		_, err := atomic.New(atomic.Config{BaseDir: path}, nil)
		assert.Error(t, err)
	})
}

func TestStore_WriteReadDelete(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.Write("entry.txt", []byte("content")))

	data, err := store.Read("entry.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)

	require.NoError(t, store.Delete("entry.txt"))
	_, err = store.Read("entry.txt")
	assert.ErrorIs(t, err, atomic.ErrNotFound)

	// Deleting a missing entry succeeds.
	require.NoError(t, store.Delete("entry.txt"))
}

func TestStore_ReadMissing(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.Read("absent.txt")
	assert.ErrorIs(t, err, atomic.ErrNotFound)
}

func TestStore_RejectsPathTraversal(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	assert.Error(t, store.Write("../escape.txt", []byte("x")))
	_, err := store.Read("../../etc/passwd")
	assert.Error(t, err)
}

// Readers racing with writers must only ever observe a complete value:
// either the old content or the new, never a truncated mix.
func TestStore_WriteIsAtomicUnderConcurrentReads(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	old := bytes.Repeat([]byte("a"), 64*1024)
	fresh := bytes.Repeat([]byte("b"), 64*1024)
	require.NoError(t, store.Write("entry.txt", old))

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				data, err := store.Read("entry.txt")
				if err != nil {
					t.Errorf("read during write: %v", err)
					return
				}
				if !bytes.Equal(data, old) && !bytes.Equal(data, fresh) {
					t.Errorf("observed partial content of %d bytes", len(data))
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		require.NoError(t, store.Write("entry.txt", fresh))
		require.NoError(t, store.Write("entry.txt", old))
	}
	require.NoError(t, store.Write("entry.txt", fresh))
	close(done)
	wg.Wait()
}

func TestStore_ConcurrentDistinctKeys(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("entry-%d.txt", n)
			payload := []byte(fmt.Sprintf("payload-%d", n))
			if err := store.Write(key, payload); err != nil {
				t.Errorf("write %s: %v", key, err)
				return
			}
			data, err := store.Read(key)
			if err != nil {
				t.Errorf("read %s: %v", key, err)
				return
			}
			if !bytes.Equal(data, payload) {
				t.Errorf("read %s: got %q", key, data)
			}
		}(i)
	}
	wg.Wait()
}

func TestWriteFile_NoTempLeftovers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, atomic.WriteFile(path, []byte(`{"ok":true}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.json", entries[0].Name())
}

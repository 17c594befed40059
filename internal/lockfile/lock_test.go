package lockfile_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyfong/aiparserpipeline/internal/lockfile"
)

func TestGuard_AcquireRelease(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.lock")

	guard, err := lockfile.New(path, nil)
	require.NoError(t, err)

	require.NoError(t, guard.Acquire())
	assert.True(t, guard.Held())

	// The lock file carries PID and timestamp diagnostics.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	pid, err := strconv.Atoi(lines[0])
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	guard.Release()
	assert.False(t, guard.Held())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

// flock state is per open file description, so a second Guard on the
// same path conflicts even within one process.
func TestGuard_SecondAcquirerIsRefused(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.lock")

	first, err := lockfile.New(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Acquire())
	defer first.Release()

	second, err := lockfile.New(path, nil)
	require.NoError(t, err)
	err = second.Acquire()
	assert.ErrorIs(t, err, lockfile.ErrAlreadyLocked)
	assert.False(t, second.Held())
}

func TestGuard_ReleasedLockIsReacquirable(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.lock")

	first, err := lockfile.New(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Acquire())
	first.Release()

	second, err := lockfile.New(path, nil)
	require.NoError(t, err)
	require.NoError(t, second.Acquire())
	second.Release()
}

func TestGuard_IdempotentCalls(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.lock")

	guard, err := lockfile.New(path, nil)
	require.NoError(t, err)

	// Double acquire by the holder is a no-op, as is double release.
	require.NoError(t, guard.Acquire())
	require.NoError(t, guard.Acquire())
	guard.Release()
	guard.Release()
	assert.False(t, guard.Held())
}

func TestNew_RequiresPath(t *testing.T) {
	t.Parallel()
	_, err := lockfile.New("", nil)
	assert.Error(t, err)
}

package headless

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	assert.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer fetcher.Close()
	assert.Equal(t, 2, cap(fetcher.limiter))
	assert.Equal(t, 45.0, fetcher.cfg.NavigationTimeout.Seconds())
}

func TestAcquireRelease(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	defer fetcher.Close()

	require.NoError(t, fetcher.acquire(context.Background()))

	// The single slot is taken; a second acquire must respect context
	// cancellation instead of blocking forever.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, fetcher.acquire(ctx))

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
	fetcher.release()

	// Releasing without a held slot is a no-op.
	fetcher.release()
}

func TestAcquireUnlimited(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MaxParallel: 0})
	require.NoError(t, err)
	defer fetcher.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, fetcher.acquire(context.Background()))
	}
}

func TestNoopFetcherRefuses(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Fetch(context.Background(), "https://example.com")
	assert.Error(t, err)
}

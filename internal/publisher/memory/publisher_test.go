package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyfong/aiparserpipeline/internal/pipeline"
)

func TestPublisher_RecordsCompletionEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	completed := pipeline.CompletionEvent{
		Project:   "alpha",
		Status:    pipeline.UnitStatusCompleted,
		Rows:      3,
		Timestamp: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	failed := pipeline.CompletionEvent{
		Project:    "beta",
		Status:     pipeline.UnitStatusFailed,
		FailedURLs: []string{"https://example.com/dead"},
	}

	id, err := pub.Publish(context.Background(), "events", completed)
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)
	id, err = pub.Publish(context.Background(), "events", failed)
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id)

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "events", events[0].Topic)
	assert.Equal(t, completed, events[0].Event)
	assert.Equal(t, pipeline.UnitStatusFailed, events[1].Event.Status)
	assert.Equal(t, []string{"https://example.com/dead"}, events[1].Event.FailedURLs)
}

func TestPublisher_EventsReturnsCopy(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "events", pipeline.CompletionEvent{Project: "alpha"})
	require.NoError(t, err)

	events := pub.Events()
	events[0].Event.Project = "mutated"
	assert.Equal(t, "alpha", pub.Events()[0].Event.Project)
}

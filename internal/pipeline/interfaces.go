package pipeline

import (
	"context"
	"time"
)

// Fetcher retrieves the content of a URL. Implementations must be
// individually time-bounded; the cache layer relies on Fetch returning.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Processor evaluates fetched content against a single prompt and returns
// the extracted fields. Supplied by the LLM collaborator.
type Processor interface {
	Process(ctx context.Context, content string, prompt string) (map[string]string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, event CompletionEvent) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Package memory records completion events in process memory. It backs
// tests and runs that only need local completion bookkeeping.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tyfong/aiparserpipeline/internal/pipeline"
)

// Publisher stores published completion events for later inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []PublishedEvent
}

// PublishedEvent captures one publish call: the topic it was addressed
// to and the completion event itself.
type PublishedEvent struct {
	Topic string
	Event pipeline.CompletionEvent
}

// New returns an empty memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a pseudo message ID.
func (p *Publisher) Publish(_ context.Context, topic string, event pipeline.CompletionEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{Topic: topic, Event: event})
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns a copy of the recorded publishes in publish order.
func (p *Publisher) Events() []PublishedEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Package pubsub publishes work-unit completion events to Google Cloud
// Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"

	"github.com/tyfong/aiparserpipeline/internal/pipeline"
)

// Publisher sends completion events through a single bound topic
// publisher. The topic argument to Publish is ignored; the binding is
// fixed at construction.
type Publisher struct {
	publisher *pubsub.Publisher
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// Publish sends one completion event. The project and status ride along
// as message attributes so subscribers can filter without decoding the
// JSON payload; trace context is injected into the same attribute map.
func (p *Publisher) Publish(ctx context.Context, _ string, event pipeline.CompletionEvent) (string, error) {
	if p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal completion event: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"project": event.Project,
			"status":  string(event.Status),
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, &eventCarrier{attrs: msg.Attributes})

	result := p.publisher.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish completion event: %w", err)
	}
	return id, nil
}

// eventCarrier implements propagation.TextMapCarrier over the message
// attribute map, so trace context and filter attributes share one map.
type eventCarrier struct {
	attrs map[string]string
}

func (c *eventCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *eventCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *eventCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}

package ports

import (
	"context"

	"github.com/epenate/orq/internal/domain"
)

// EventHandler processes a single event delivered by the bus.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus carries engine lifecycle events to observers. The engine is the
// single writer of state; subscribers are read-only consumers.
type EventBus interface {
	// Publish delivers an event to all subscribers of a topic.
	Publish(ctx context.Context, topic string, event domain.Event) error

	// Subscribe registers a handler for a topic. The subscription lives
	// until the context is cancelled.
	Subscribe(ctx context.Context, topic string, handler EventHandler) error

	// Unsubscribe removes all subscriptions from a topic.
	Unsubscribe(ctx context.Context, topic string) error

	// Close releases bus resources.
	Close() error
}

// Package memory implements an in-process event bus. It backs the engine
// in tests and in embedded single-binary deployments where Redis is not
// configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/epenate/orq/internal/domain"
	"github.com/epenate/orq/internal/ports"
)

// Bus fans events out to topic subscribers in-process. Handlers run
// asynchronously; a slow subscriber never blocks the publisher.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]ports.EventHandler
	closed bool
}

// NewBus creates an in-memory event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[int]ports.EventHandler),
	}
}

// Publish delivers the event to every subscriber of the topic.
func (b *Bus) Publish(ctx context.Context, topic string, event domain.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}
	handlers := make([]ports.EventHandler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h ports.EventHandler) {
			// Handler errors are the subscriber's problem, not the
			// publisher's.
			_ = h(ctx, event)
		}(handler)
	}
	return nil
}

// Subscribe registers a handler for a topic. The subscription is removed
// when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("event bus is closed")
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]ports.EventHandler)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[topic], id)
		b.mu.Unlock()
	}()

	return nil
}

// Unsubscribe drops every subscriber of the topic.
func (b *Bus) Unsubscribe(ctx context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, topic)
	return nil
}

// Close drops all subscriptions.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = make(map[string]map[int]ports.EventHandler)
	b.closed = true
	return nil
}

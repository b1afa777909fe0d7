package memory

import (
	"context"
	"testing"
	"time"

	"github.com/epenate/orq/internal/domain"
)

func waitEvent(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	bus := NewBus()
	received := make(chan domain.Event, 1)

	err := bus.Subscribe(context.Background(), domain.TopicWorkflowEvents, func(ctx context.Context, ev domain.Event) error {
		received <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	want := domain.Event{ID: "ev-1", Type: domain.EventWorkflowStarted, WorkflowID: "wf"}
	if err := bus.Publish(context.Background(), domain.TopicWorkflowEvents, want); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := waitEvent(t, received)
	if got.ID != want.ID || got.Type != want.Type {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := NewBus()
	received := make(chan domain.Event, 1)

	_ = bus.Subscribe(context.Background(), domain.TopicTaskEvents, func(ctx context.Context, ev domain.Event) error {
		received <- ev
		return nil
	})

	_ = bus.Publish(context.Background(), domain.TopicWorkflowEvents, domain.Event{ID: "wrong-topic"})

	select {
	case ev := <-received:
		t.Fatalf("received event from wrong topic: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	bus := NewBus()
	first := make(chan domain.Event, 1)
	second := make(chan domain.Event, 1)

	_ = bus.Subscribe(context.Background(), domain.TopicTaskEvents, func(ctx context.Context, ev domain.Event) error {
		first <- ev
		return nil
	})
	_ = bus.Subscribe(context.Background(), domain.TopicTaskEvents, func(ctx context.Context, ev domain.Event) error {
		second <- ev
		return nil
	})

	_ = bus.Publish(context.Background(), domain.TopicTaskEvents, domain.Event{ID: "fanout"})

	if ev := waitEvent(t, first); ev.ID != "fanout" {
		t.Errorf("first subscriber got %+v", ev)
	}
	if ev := waitEvent(t, second); ev.ID != "fanout" {
		t.Errorf("second subscriber got %+v", ev)
	}
}

func TestContextCancelRemovesSubscription(t *testing.T) {
	bus := NewBus()
	received := make(chan domain.Event, 4)

	ctx, cancel := context.WithCancel(context.Background())
	_ = bus.Subscribe(ctx, domain.TopicTaskEvents, func(ctx context.Context, ev domain.Event) error {
		received <- ev
		return nil
	})

	cancel()
	// Removal runs in a goroutine; give it a moment.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		bus.mu.RLock()
		n := len(bus.subs[domain.TopicTaskEvents])
		bus.mu.RUnlock()
		if n == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = bus.Publish(context.Background(), domain.TopicTaskEvents, domain.Event{ID: "after-cancel"})

	select {
	case ev := <-received:
		t.Fatalf("cancelled subscriber received %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClosedBusRejectsUse(t *testing.T) {
	bus := NewBus()
	received := make(chan domain.Event, 1)

	_ = bus.Subscribe(context.Background(), domain.TopicTaskEvents, func(ctx context.Context, ev domain.Event) error {
		received <- ev
		return nil
	})
	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := bus.Publish(context.Background(), domain.TopicTaskEvents, domain.Event{ID: "late"}); err == nil {
		t.Error("expected Publish on a closed bus to fail")
	}
	if err := bus.Subscribe(context.Background(), domain.TopicTaskEvents, func(ctx context.Context, ev domain.Event) error {
		return nil
	}); err == nil {
		t.Error("expected Subscribe on a closed bus to fail")
	}

	select {
	case ev := <-received:
		t.Fatalf("closed bus delivered %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeDropsTopic(t *testing.T) {
	bus := NewBus()
	received := make(chan domain.Event, 1)

	_ = bus.Subscribe(context.Background(), domain.TopicTaskEvents, func(ctx context.Context, ev domain.Event) error {
		received <- ev
		return nil
	})
	if err := bus.Unsubscribe(context.Background(), domain.TopicTaskEvents); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	_ = bus.Publish(context.Background(), domain.TopicTaskEvents, domain.Event{ID: "dropped"})

	select {
	case ev := <-received:
		t.Fatalf("unsubscribed topic delivered %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

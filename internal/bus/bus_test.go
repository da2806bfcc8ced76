package bus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishSync(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	var got []Event
	b.Subscribe(EventTypeSend, func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	b.PublishSync(Event{Type: EventTypeSend, Data: map[string]any{"text": "hi"}})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("handler fired %d times, want 1", len(got))
	}
	if got[0].Data["text"] != "hi" {
		t.Errorf("data = %v", got[0].Data)
	}
}

func TestPublishIsAsync(t *testing.T) {
	b := NewEventBus()

	done := make(chan struct{})
	b.Subscribe(EventTypeStop, func(Event) { close(done) })

	b.Publish(Event{Type: EventTypeStop})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handler never ran")
	}
}

func TestSubscribeMultiple(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	count := 0
	b.SubscribeMultiple([]EventType{EventTypeDictationStarted, EventTypeDictationStopped}, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.PublishSync(Event{Type: EventTypeDictationStarted})
	b.PublishSync(Event{Type: EventTypeDictationStopped})
	b.PublishSync(Event{Type: EventTypeNavigate})

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("handler fired %d times, want 2", count)
	}
}

func TestClear(t *testing.T) {
	b := NewEventBus()

	fired := false
	b.Subscribe(EventTypeSend, func(Event) { fired = true })
	b.Clear()
	b.PublishSync(Event{Type: EventTypeSend})

	if fired {
		t.Error("handler fired after Clear")
	}
}

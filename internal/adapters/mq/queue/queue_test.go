package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/types"
)

func testEvent(id, entityID string) model.ViewEvent {
	return model.ViewEvent{
		EventID:    id,
		EntityType: types.EntityCast,
		EntityID:   entityID,
		ViewerKey:  model.ViewerKey{SessionID: "sess-" + id},
		Area:       "okayama",
		ViewedAt:   time.Now(),
	}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	// Test empty queue
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	// Test enqueue
	event1 := testEvent("event1", "cast-1")
	if !q.Enqueue(ctx, event1) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	// Test dequeue
	eventChan := q.Dequeue(ctx)
	event := <-eventChan
	if event.EventID != "event1" {
		t.Errorf("expected event1, got %v", event.EventID)
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, testEvent("event1", "cast-1")) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, testEvent("event2", "cast-2")) {
		t.Error("expected enqueue to succeed")
	}

	// Try to enqueue when full
	if q.Enqueue(ctx, testEvent("event3", "cast-3")) {
		t.Error("expected enqueue to fail when full")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2000))
	ctx := context.Background()
	numGoroutines := 10
	numEvents := 100

	// Start producer goroutines
	done := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			for j := 0; j < numEvents; j++ {
				event := testEvent(fmt.Sprintf("event-%d-%d", id, j), fmt.Sprintf("cast-%d", id))
				q.Enqueue(ctx, event)
			}
			done <- true
		}(i)
	}

	// Consume everything that arrives
	received := 0
	eventChan := q.Dequeue(ctx)
	producersDone := 0
	timeout := time.After(5 * time.Second)
	for producersDone < numGoroutines || q.Len(ctx) > 0 {
		select {
		case <-eventChan:
			received++
		case <-done:
			producersDone++
		case <-timeout:
			t.Fatalf("timed out, received %d events", received)
		}
	}

	if received == 0 {
		t.Error("expected to receive events")
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if q.IsClosed() {
		t.Error("expected queue to be open")
	}

	if err := q.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}

	// Closing twice is a no-op
	if err := q.Close(); err != nil {
		t.Errorf("unexpected error on second close: %v", err)
	}

	// Enqueue after close fails
	if q.Enqueue(ctx, testEvent("late", "cast-1")) {
		t.Error("expected enqueue to fail after close")
	}
}

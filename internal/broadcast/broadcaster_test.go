package broadcast

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_DeliversToAllSubscribers(t *testing.T) {
	b := New(nil)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	fileID := uuid.New()
	b.Broadcast(Event{Type: EventFileAdded, FileID: fileID})

	for _, s := range []*Subscription{s1, s2} {
		ev := <-s.Events()
		assert.Equal(t, EventFileAdded, ev.Type)
		assert.Equal(t, fileID, ev.FileID)
	}
}

func TestBroadcaster_FIFOPerSubscriber(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe()

	fileID := uuid.New()
	sequence := []EventType{EventFileAdded, EventProcessingStarted, EventProcessingCompleted}
	for _, typ := range sequence {
		b.Broadcast(Event{Type: typ, FileID: fileID})
	}

	for i, want := range sequence {
		ev := <-sub.Events()
		assert.Equal(t, want, ev.Type, "event %d", i)
	}
}

func TestBroadcaster_EvictsFullSubscriber(t *testing.T) {
	b := New(nil)
	b.buffer = 1

	stuck := b.Subscribe()
	healthy := b.Subscribe()

	// Drain healthy continuously so only stuck overflows.
	healthyGot := make(chan Event, 8)
	go func() {
		for ev := range healthy.Events() {
			healthyGot <- ev
		}
		close(healthyGot)
	}()

	// First event fills stuck's one-slot buffer; the second overflows it
	// and must evict stuck without blocking delivery to healthy.
	b.Broadcast(Event{Type: EventProcessingStarted, FileID: uuid.New()})
	require.Equal(t, EventProcessingStarted, (<-healthyGot).Type)
	b.Broadcast(Event{Type: EventProcessingCompleted, FileID: uuid.New()})
	require.Equal(t, EventProcessingCompleted, (<-healthyGot).Type)

	assert.Equal(t, 1, b.SubscriberCount())

	ev, ok := <-stuck.Events()
	require.True(t, ok)
	assert.Equal(t, EventProcessingStarted, ev.Type)
	_, ok = <-stuck.Events()
	assert.False(t, ok, "evicted subscriber's channel should be closed")

	b.Unsubscribe(healthy)
}

func TestBroadcaster_UnsubscribeIdempotent(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_ConcurrentBroadcasts(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe()

	const events = 100
	received := make(chan Event, events)
	go func() {
		for ev := range sub.Events() {
			received <- ev
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < events/4; j++ {
				b.Broadcast(Event{Type: EventProcessingStarted, FileID: uuid.New()})
			}
		}()
	}
	wg.Wait()

	for i := 0; i < events; i++ {
		<-received
	}
	b.Unsubscribe(sub)
}

// Package broadcast fans lifecycle events out to connected subscribers.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventFileAdded           EventType = "file_added"
	EventProcessingStarted   EventType = "processing_started"
	EventProcessingCompleted EventType = "processing_completed"
	EventProcessingFailed    EventType = "processing_failed"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Type       EventType  `json:"type"`
	FileID     uuid.UUID  `json:"fileId"`
	DocumentID *uuid.UUID `json:"documentId,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Subscription is a live subscriber handle. Events arrive on Events() in
// broadcast order until the subscriber is evicted or unsubscribed, after
// which the channel is closed.
type Subscription struct {
	id uint64
	ch chan Event
}

// Events returns the subscriber's delivery channel.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Broadcaster maintains the subscriber set. Safe for concurrent Broadcast
// calls from multiple workers.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	logger *slog.Logger
}

func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[uint64]*Subscription),
		buffer: 64,
		logger: logger,
	}
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, ch: make(chan Event, b.buffer)}
	b.subs[sub.id] = sub
	b.logger.Debug("subscriber connected", "subscriber_id", sub.id)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Idempotent.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
	b.logger.Debug("subscriber disconnected", "subscriber_id", sub.id)
}

// Broadcast delivers the event to every current subscriber. A subscriber
// whose buffer is full is treated as disconnected: it is evicted and its
// channel closed, without blocking delivery to the rest. Each surviving
// subscriber sees events in broadcast order.
func (b *Broadcaster) Broadcast(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			delete(b.subs, id)
			close(sub.ch)
			b.logger.Warn("dropping unresponsive subscriber", "subscriber_id", id, "event", ev.Type)
		}
	}
}

// SubscriberCount reports the number of connected subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

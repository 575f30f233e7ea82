package service

import (
	"context"
	"sync"
)

// EventType defines the type of event
type EventType string

const (
	EventGraphUpdated     EventType = "graph_updated"
	EventPositionsUpdated EventType = "positions_updated"
	EventRecordsUpdated   EventType = "records_updated"
)

// Event represents an event that occurred in the system. Origin names the
// writer that caused it, when the write carried one.
type Event struct {
	Type    EventType   `json:"type"`
	Account string      `json:"account,omitempty"`
	Origin  string      `json:"origin,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

type originKey struct{}

// WithOrigin tags writes made with ctx so their events can be told apart
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin set by WithOrigin
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan<- Event
	next        int
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[int]chan<- Event),
	}
}

// Subscribe adds a subscriber to receive events. The returned function
// removes it again.
func (eb *EventBus) Subscribe(ch chan<- Event) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.next
	eb.next++
	eb.subscribers[id] = ch
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.subscribers, id)
	}
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

package sim

import (
	"sync"

	"rallypoint/server/internal/world"
)

// EventType enumerates the gameplay events the movement core emits.
type EventType string

const (
	EventPathFound   EventType = "path_found"
	EventPathFailed  EventType = "path_failed"
	EventUnitArrived EventType = "unit_reached_destination"
	EventUnitStuck   EventType = "unit_stuck"
)

// Event is delivered to outbox subscribers. Path is only set for
// path_found, Reason for path_failed, Position for unit_stuck.
type Event struct {
	Type      EventType    `json:"type"`
	Tick      uint64       `json:"tick"`
	AgentID   string       `json:"agentId"`
	RequestID string       `json:"requestId,omitempty"`
	Path      []world.Vec3 `json:"path,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Position  *world.Vec3  `json:"position,omitempty"`
}

// Subscriber consumes gameplay events. Handlers run on the tick goroutine
// once the state update completes and must not block; they may call back
// into the engine.
type Subscriber interface {
	HandleEvent(Event)
}

// SubscriberFunc adapts functions into the Subscriber interface.
type SubscriberFunc func(Event)

// HandleEvent implements Subscriber for SubscriberFunc.
func (f SubscriberFunc) HandleEvent(event Event) {
	if f == nil {
		return
	}
	f(event)
}

// Outbox fans gameplay events out to subscribers, decoupling the core from
// rendering, AI, and network consumers.
type Outbox struct {
	mu   sync.RWMutex
	subs []Subscriber
}

// NewOutbox constructs an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Subscribe registers a subscriber for future events.
func (o *Outbox) Subscribe(sub Subscriber) {
	if o == nil || sub == nil {
		return
	}
	o.mu.Lock()
	o.subs = append(o.subs, sub)
	o.mu.Unlock()
}

// Notify delivers the event to every subscriber in registration order.
func (o *Outbox) Notify(event Event) {
	if o == nil {
		return
	}
	o.mu.RLock()
	subs := append([]Subscriber(nil), o.subs...)
	o.mu.RUnlock()
	for _, sub := range subs {
		sub.HandleEvent(event)
	}
}

// Event system for lifecycle hooks
// This file defines the event types and data structures used by the hook system.
package hooks

import (
	"time"
)

// EventType represents a lifecycle transition that can trigger hooks.
type EventType string

const (
	// EventFirstSubscriber fires when a path's subscriber count goes 0→1.
	EventFirstSubscriber EventType = "first_subscriber"
	// EventLastSubscriber fires when a path's subscriber count goes 1→0.
	EventLastSubscriber EventType = "last_subscriber"
	// EventPublisherConnected fires when a path gains its publisher.
	EventPublisherConnected EventType = "publisher_connected"
	// EventPublisherDisconnected fires when a path loses its publisher.
	EventPublisherDisconnected EventType = "publisher_disconnected"
)

// AllEventTypes lists every lifecycle event, in a stable order.
var AllEventTypes = []EventType{
	EventFirstSubscriber,
	EventLastSubscriber,
	EventPublisherConnected,
	EventPublisherDisconnected,
}

// Event represents a single lifecycle transition delivered to hooks.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	Path      string                 `json:"path,omitempty"`
	User      string                 `json:"user,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      make(map[string]interface{}),
	}
}

// WithPath sets the stream path for the event.
func (e *Event) WithPath(path string) *Event {
	e.Path = path
	return e
}

// WithUser sets the acting user identity for the event.
func (e *Event) WithUser(user string) *Event {
	e.User = user
	return e
}

// WithData adds a data field to the event.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// String returns a human-readable representation of the event.
func (e *Event) String() string {
	if e.Path != "" {
		return string(e.Type) + ":" + e.Path
	}
	return string(e.Type)
}

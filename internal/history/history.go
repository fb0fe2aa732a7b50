// Package history exports service lifecycle events to external stores.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventInstall EventType = "install"
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventCrash   EventType = "crash" // exited inside the start grace window
	EventReap    EventType = "reap"  // stale record removed after the process vanished
)

// Event is one lifecycle transition of a service or package.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Service    string    `json:"service"`
	PID        int       `json:"pid"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Package pubsub provides a generic publish/subscribe event system.
// It carries log entries and the fire-and-forget notifications the shell
// emits toward the window.
package pubsub

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Publish once the broker has been closed.
var ErrClosed = errors.New("pubsub: broker closed")

// EventType names the kind of event being published.
type EventType string

const (
	// LogEvent carries a formatted log line.
	LogEvent EventType = "log"
	// NotifyEvent carries a named notification for the window.
	NotifyEvent EventType = "notify"
	// OutputEvent carries a line produced by the sidecar.
	OutputEvent EventType = "output"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T) (int, error)
}

// Package notify carries named notifications from the backend to the
// window over a pubsub broker.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/tether/internal/log"
	"github.com/zjrosen/tether/internal/pubsub"
	"github.com/zjrosen/tether/internal/sidecar"
)

// Notification names.
const (
	SidecarError    = sidecar.ErrorEventName
	SidecarOutput   = "sidecar-output"
	BinaryChanged   = "sidecar-binary-changed"
	UpdateAvailable = "update-available"
	InstallUpdate   = "install_update"
	Info            = "info"
)

// Notification is one named message for the window.
type Notification struct {
	Name    string
	Payload any
}

// OutputLine is the payload of SidecarOutput notifications.
type OutputLine struct {
	Stderr bool
	Text   string
	At     time.Time
}

// MessagePayload is the payload of plain text notifications.
type MessagePayload struct {
	Message string `json:"message"`
}

// Message extracts a human readable text from known payloads.
func (n Notification) Message() string {
	switch p := n.Payload.(type) {
	case sidecar.ErrorPayload:
		return p.Message
	case MessagePayload:
		return p.Message
	case OutputLine:
		return p.Text
	case string:
		return p
	case fmt.Stringer:
		return p.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", p)
	}
}

// Emitter publishes notifications. It satisfies sidecar.Notifier.
type Emitter struct {
	broker *pubsub.Broker[Notification]
}

var _ sidecar.Notifier = (*Emitter)(nil)

// NewEmitter creates an Emitter with its own broker.
func NewEmitter() *Emitter {
	return &Emitter{broker: pubsub.NewBrokerWithBuffer[Notification](256)}
}

// Notify publishes a named notification. Delivery to a slow subscriber may
// be dropped; an error is returned only once the emitter is closed.
func (e *Emitter) Notify(name string, payload any) error {
	n, err := e.broker.Publish(pubsub.NotifyEvent, Notification{Name: name, Payload: payload})
	if err != nil {
		return fmt.Errorf("notify %s: %w", name, err)
	}
	log.Debug(log.CatUI, "notification", "name", name, "delivered", n)
	return nil
}

// Output forwards a sidecar output line. Other event kinds are ignored.
// It is meant to be passed to sidecar.WithObserver.
func (e *Emitter) Output(ev sidecar.Event) {
	if ev.Kind != sidecar.EventStdout && ev.Kind != sidecar.EventStderr {
		return
	}
	line := OutputLine{Stderr: ev.Kind == sidecar.EventStderr, Text: ev.Text(), At: ev.Timestamp}
	_, _ = e.broker.Publish(pubsub.OutputEvent, Notification{Name: SidecarOutput, Payload: line})
}

// Subscribe returns a channel of notifications that closes with ctx.
func (e *Emitter) Subscribe(ctx context.Context) <-chan pubsub.Event[Notification] {
	return e.broker.Subscribe(ctx)
}

// Broker exposes the underlying broker for tea listeners.
func (e *Emitter) Broker() *pubsub.Broker[Notification] {
	return e.broker
}

// Close stops delivery and closes all subscriptions.
func (e *Emitter) Close() {
	e.broker.Close()
}

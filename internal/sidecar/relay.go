package sidecar

import (
	"context"
	"errors"

	"github.com/zjrosen/tether/internal/log"
)

// ErrorEventName is the notification emitted when the worker reports an error.
const ErrorEventName = "sidecar-error"

// ErrorPayload is the body of an ErrorEventName notification.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Notifier delivers fire-and-forget notifications to the window.
type Notifier interface {
	Notify(name string, payload any) error
}

// Exiter ends the application with the given status.
type Exiter interface {
	Exit(code int)
}

// ShutdownFunc observes the shutdown path that emptied the slot.
type ShutdownFunc func(reason ExitReason, status ExitStatus)

// Relay drains a worker's event stream for the lifetime of the application.
type Relay struct {
	slot       *Slot
	notifier   Notifier
	exiter     Exiter
	observer   func(Event)
	onShutdown ShutdownFunc
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithObserver registers fn to see every event before the relay acts on it.
func WithObserver(fn func(Event)) RelayOption {
	return func(r *Relay) {
		r.observer = fn
	}
}

// WithRelayShutdown registers fn to run when the relay empties the slot.
func WithRelayShutdown(fn ShutdownFunc) RelayOption {
	return func(r *Relay) {
		r.onShutdown = fn
	}
}

// NewRelay creates a relay acting on slot.
func NewRelay(slot *Slot, notifier Notifier, exiter Exiter, opts ...RelayOption) *Relay {
	r := &Relay{
		slot:     slot,
		notifier: notifier,
		exiter:   exiter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes events in order until a fatal event, the end of the stream,
// or cancellation of ctx, and returns why it stopped.
//
// Output lines are logged. Error and Terminated events, and the stream
// closing, empty the slot and exit the application with status 1, unless a
// lifecycle hook emptied the slot first, in which case the relay just returns.
func (r *Relay) Run(ctx context.Context, events <-chan Event) ExitReason {
	log.Debug(log.CatRelay, "relay started")
	for {
		select {
		case <-ctx.Done():
			log.Debug(log.CatRelay, "relay cancelled")
			return ReasonCancelled
		case ev, ok := <-events:
			if ctx.Err() != nil {
				log.Debug(log.CatRelay, "relay cancelled")
				return ReasonCancelled
			}
			if !ok {
				log.Warn(log.CatRelay, "[Sidecar] event stream ended")
				r.fatal(ReasonStreamEnded, ExitStatus{Code: -1}, "")
				return ReasonStreamEnded
			}
			if r.observer != nil {
				r.observer(ev)
			}
			if reason, stop := r.handle(ev); stop {
				return reason
			}
		}
	}
}

func (r *Relay) handle(ev Event) (ExitReason, bool) {
	switch ev.Kind {
	case EventStdout:
		log.Info(log.CatRelay, "[Sidecar stdout]", "line", ev.Text())
	case EventStderr:
		log.Warn(log.CatRelay, "[Sidecar stderr]", "line", ev.Text())
	case EventError:
		message := "[Sidecar error] " + ev.Message
		log.Error(log.CatRelay, message)
		r.fatal(ReasonLaunchError, ExitStatus{Code: -1}, message)
		return ReasonLaunchError, true
	case EventTerminated:
		log.Warn(log.CatRelay, "[Sidecar] Terminated.", "status", ev.Status)
		r.fatal(ReasonTerminated, ev.Status, "")
		return ReasonTerminated, true
	}
	return "", false
}

// fatal performs the relay's shutdown: teardown, then notify, then exit.
func (r *Relay) fatal(reason ExitReason, status ExitStatus, message string) {
	had, err := r.slot.TakeAndTerminate()
	if !had {
		log.Debug(log.CatRelay, "slot already empty, shutdown in progress", "reason", reason)
		return
	}
	if err != nil && !errors.Is(err, ErrAlreadyTerminated) {
		log.Debug(log.CatRelay, "terminate failed, ignoring", "error", err)
	}
	if r.onShutdown != nil {
		r.onShutdown(reason, status)
	}
	if message != "" && r.notifier != nil {
		if err := r.notifier.Notify(ErrorEventName, ErrorPayload{Message: message}); err != nil {
			log.Debug(log.CatRelay, "notification not delivered", "error", err)
		}
	}
	r.exiter.Exit(1)
}

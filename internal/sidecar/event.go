package sidecar

import (
	"fmt"
	"strings"
	"time"
)

// EventKind tags a sidecar Event.
type EventKind int

const (
	// EventStdout carries one line of standard output.
	EventStdout EventKind = iota
	// EventStderr carries one line of standard error.
	EventStderr
	// EventError reports a runtime failure reading from or waiting on the worker.
	EventError
	// EventTerminated reports that the worker process exited.
	EventTerminated
)

func (k EventKind) String() string {
	switch k {
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventError:
		return "error"
	case EventTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ExitStatus describes how the worker process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was killed by a signal
	// or the code is unknown.
	Code int
	// Signal names the terminating signal, if any.
	Signal string
}

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return fmt.Sprintf("signal %s", s.Signal)
	}
	return fmt.Sprintf("code %d", s.Code)
}

// Event is one item of the ordered, finite stream a running worker produces.
type Event struct {
	Kind      EventKind
	Line      []byte     // EventStdout, EventStderr
	Message   string     // EventError
	Status    ExitStatus // EventTerminated
	Timestamp time.Time
}

// Text returns Line decoded as UTF-8, replacing invalid sequences.
func (e Event) Text() string {
	return strings.ToValidUTF8(string(e.Line), "�")
}

// Fatal reports whether the event ends the application.
func (e Event) Fatal() bool {
	return e.Kind == EventError || e.Kind == EventTerminated
}

// StdoutEvent builds an EventStdout. Mostly useful for tests and fakes.
func StdoutEvent(line string) Event {
	return Event{Kind: EventStdout, Line: []byte(line), Timestamp: time.Now()}
}

// StderrEvent builds an EventStderr.
func StderrEvent(line string) Event {
	return Event{Kind: EventStderr, Line: []byte(line), Timestamp: time.Now()}
}

// ErrorEvent builds an EventError.
func ErrorEvent(message string) Event {
	return Event{Kind: EventError, Message: message, Timestamp: time.Now()}
}

// TerminatedEvent builds an EventTerminated.
func TerminatedEvent(status ExitStatus) Event {
	return Event{Kind: EventTerminated, Status: status, Timestamp: time.Now()}
}

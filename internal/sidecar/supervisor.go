package sidecar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/zjrosen/tether/internal/log"
)

// Restarter replaces the running application with a fresh instance.
type Restarter interface {
	Restart()
}

// Host is what the lifecycle hooks need from the application.
type Host interface {
	Exiter
	Restarter
}

// CloseRequest is a cancelable window-close event.
type CloseRequest interface {
	PreventClose()
}

// Supervisor owns the lifecycle hooks. Every hook runs the same idempotent
// cleanup (take the handle, terminate it) before its own follow-up action.
type Supervisor struct {
	slot       *Slot
	host       Host
	state      atomic.Int32
	onShutdown ShutdownFunc

	relayMu   sync.Mutex
	stopRelay context.CancelFunc
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithShutdown registers fn to run when a hook empties the slot.
func WithShutdown(fn ShutdownFunc) SupervisorOption {
	return func(s *Supervisor) {
		s.onShutdown = fn
	}
}

// NewSupervisor creates a Supervisor over slot.
func NewSupervisor(slot *Slot, host Host, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{slot: slot, host: host}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// MarkRunning records a successful launch. It has no effect once shutdown began.
func (s *Supervisor) MarkRunning() {
	s.state.CompareAndSwap(int32(StateNotStarted), int32(StateRunning))
}

// MarkShuttingDown moves to the terminal state.
func (s *Supervisor) MarkShuttingDown() {
	s.state.Store(int32(StateShuttingDown))
}

// AttachRelay registers the cancel function of the running relay so a hook
// stops event processing before it kills the worker.
func (s *Supervisor) AttachRelay(cancel context.CancelFunc) {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()
	s.stopRelay = cancel
}

// Cleanup is the shared shutdown procedure. It stops the relay, takes the
// handle if present and terminates it; termination errors are swallowed.
// It reports whether this call performed the termination.
func (s *Supervisor) Cleanup(reason ExitReason) bool {
	s.MarkShuttingDown()

	s.relayMu.Lock()
	if s.stopRelay != nil {
		s.stopRelay()
	}
	s.relayMu.Unlock()

	had, err := s.slot.TakeAndTerminate()
	if !had {
		log.Debug(log.CatLifecycle, "no sidecar to stop", "reason", reason)
		return false
	}
	if err != nil && !errors.Is(err, ErrAlreadyTerminated) {
		log.Debug(log.CatLifecycle, "terminate failed, ignoring", "reason", reason, "error", err)
	}
	log.Info(log.CatLifecycle, "Sidecar process killed", "reason", reason)
	if s.onShutdown != nil {
		s.onShutdown(reason, ExitStatus{Code: -1, Signal: "killed"})
	}
	return true
}

// CloseRequested handles a window-close request: the default close is
// prevented, the worker is stopped, then the application exits with 0.
func (s *Supervisor) CloseRequested(req CloseRequest) {
	log.Info(log.CatLifecycle, "Close requested")
	if req != nil {
		req.PreventClose()
	}
	s.Cleanup(ReasonCloseRequested)
	s.host.Exit(0)
}

// Destroyed handles destruction of the window: stop the worker, exit with 0.
func (s *Supervisor) Destroyed() {
	log.Debug(log.CatLifecycle, "Window destroyed")
	s.Cleanup(ReasonDestroyed)
	s.host.Exit(0)
}

// ExitRequested handles an application exit request. The exit itself is
// left to proceed.
func (s *Supervisor) ExitRequested() {
	log.Info(log.CatLifecycle, "Exit requested")
	s.Cleanup(ReasonExitRequested)
}

// Restart stops the worker and then asks the host to restart the application.
func (s *Supervisor) Restart() {
	log.Info(log.CatLifecycle, "Restart requested")
	s.Cleanup(ReasonRestart)
	s.host.Restart()
}

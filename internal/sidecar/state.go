package sidecar

// State is the application's relationship to its sidecar.
type State int32

const (
	// StateNotStarted means the launcher has not run yet.
	StateNotStarted State = iota
	// StateRunning means the sidecar was launched and no shutdown has begun.
	StateRunning
	// StateShuttingDown is terminal: the sidecar is gone or going.
	StateShuttingDown
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateShuttingDown
}

// ExitReason records which path ended the sidecar's life.
type ExitReason string

const (
	ReasonCloseRequested ExitReason = "close_requested"
	ReasonDestroyed      ExitReason = "destroyed"
	ReasonExitRequested  ExitReason = "exit_requested"
	ReasonRestart        ExitReason = "restart"
	ReasonLaunchError    ExitReason = "launch_error"
	ReasonTerminated     ExitReason = "terminated"
	ReasonStreamEnded    ExitReason = "stream_ended"
	ReasonSpawnFailed    ExitReason = "spawn_failed"
	// ReasonCancelled means the relay was stopped by its context. It is not
	// a shutdown trigger on its own.
	ReasonCancelled ExitReason = "cancelled"
)

// Fatal reports whether the reason originates from the sidecar itself
// rather than from a lifecycle hook.
func (r ExitReason) Fatal() bool {
	switch r {
	case ReasonLaunchError, ReasonTerminated, ReasonStreamEnded, ReasonSpawnFailed:
		return true
	default:
		return false
	}
}

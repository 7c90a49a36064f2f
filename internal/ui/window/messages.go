package window

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/tether/internal/sidecar"
)

// ExitMsg tells the window the application is exiting with Code.
// It is the only way the program ends once a close was intercepted.
type ExitMsg struct {
	Code int
}

// StatusMsg reports the sidecar's current state for the header.
type StatusMsg struct {
	State      sidecar.State
	PID        int
	Executable string
}

// CloseRequestedMsg is produced when something asked the window to close.
type CloseRequestedMsg struct{}

// commandResultMsg carries the outcome of an invoked command.
type commandResultMsg struct {
	name   string
	result any
	err    error
}

// closeHandledMsg is returned after the close handler ran.
type closeHandledMsg struct {
	prevented bool
}

// closeRequest is the cancelable close event handed to the close handler.
type closeRequest struct {
	prevented atomic.Bool
}

func (r *closeRequest) PreventClose() {
	r.prevented.Store(true)
}

var _ sidecar.CloseRequest = (*closeRequest)(nil)

// Filter turns a quit that the window did not initiate into a close
// request, so the close handler always runs first. Install it with
// tea.WithFilter.
func Filter(m tea.Model, msg tea.Msg) tea.Msg {
	if _, ok := msg.(tea.QuitMsg); !ok {
		return msg
	}
	if w, ok := m.(Model); ok && !w.exiting {
		return CloseRequestedMsg{}
	}
	return msg
}

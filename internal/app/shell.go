package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/tether/internal/log"
	"github.com/zjrosen/tether/internal/sidecar"
	"github.com/zjrosen/tether/internal/ui/window"
)

// shell is the sidecar.Host of a running application. The first Exit
// decides the exit code; later calls are ignored.
type shell struct {
	mu      sync.Mutex
	program *tea.Program
	exited  bool
	code    int
	restart bool
}

var _ sidecar.Host = (*shell)(nil)

func (s *shell) attach(p *tea.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.program = p
}

// Exit ends the application with code. The window is told to quit.
func (s *shell) Exit(code int) {
	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		return
	}
	s.exited = true
	s.code = code
	p := s.program
	s.mu.Unlock()

	log.Info(log.CatLifecycle, "Application exiting", "code", code)
	if p != nil {
		// Returns immediately once the program has finished.
		p.Send(window.ExitMsg{Code: code})
	}
}

// Restart ends the application and asks for a fresh instance to be
// started. It has no effect once an exit is under way.
func (s *shell) Restart() {
	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		log.Debug(log.CatLifecycle, "restart ignored, already exiting")
		return
	}
	s.restart = true
	s.mu.Unlock()
	s.Exit(0)
}

func (s *shell) result() (code int, restart bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.restart
}

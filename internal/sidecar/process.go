package sidecar

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/zjrosen/tether/internal/log"
)

const (
	// DefaultLineLimit caps a single emitted line; longer lines are split.
	DefaultLineLimit = 1024 * 1024
	// DefaultEventBuffer is the capacity of the event channel.
	DefaultEventBuffer = 100
)

// Process is a running worker. It is the Handle stored in the Slot and the
// producer of the Event stream returned by Events.
type Process struct {
	cmd        *exec.Cmd
	execPath   string
	stdout     io.ReadCloser
	stderr     io.ReadCloser
	group      procGroup
	lineLimit  int
	events     chan Event
	quit       chan struct{}
	done       chan struct{}
	readers    sync.WaitGroup
	startedAt  time.Time
	quitOnce   sync.Once
	termOnce   sync.Once
	termErr    error
	statusMu   sync.RWMutex
	exitStatus *ExitStatus
}

// PID returns the OS process id, or -1 if the process never started.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Executable returns the path the process was started from.
func (p *Process) Executable() string {
	return p.execPath
}

// StartedAt returns when the process was started.
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Events returns the ordered event stream. Terminated is always the last
// event; the channel is closed right after it. The stream is single-use.
func (p *Process) Events() <-chan Event {
	return p.events
}

// Done is closed once the process has been waited on.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitStatus returns the exit status once Done is closed.
func (p *Process) ExitStatus() (ExitStatus, bool) {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	if p.exitStatus == nil {
		return ExitStatus{}, false
	}
	return *p.exitStatus, true
}

// Terminate kills the process (and its process group or job where the
// platform supports it). Only the first call does any work; later calls
// return the first result.
func (p *Process) Terminate() error {
	p.termOnce.Do(func() {
		p.stopEmitting()
		select {
		case <-p.done:
			p.termErr = ErrAlreadyTerminated
			return
		default:
		}
		if p.cmd.Process == nil {
			p.termErr = ErrAlreadyTerminated
			return
		}
		err := p.group.kill(p.cmd.Process)
		if errors.Is(err, os.ErrProcessDone) {
			err = ErrAlreadyTerminated
		}
		p.termErr = err
		log.Debug(log.CatSidecar, "terminate issued", "pid", p.PID(), "error", err)
	})
	return p.termErr
}

// stopEmitting makes every pending and future send a no-op so the reader
// goroutines can drain the pipes after nobody listens any more.
func (p *Process) stopEmitting() {
	p.quitOnce.Do(func() { close(p.quit) })
}

func (p *Process) emit(ev Event) bool {
	select {
	case <-p.quit:
		return false
	default:
	}
	select {
	case p.events <- ev:
		return true
	case <-p.quit:
		return false
	}
}

// start launches the reader and wait goroutines. Called once by the Launcher
// after cmd.Start succeeded.
func (p *Process) start() {
	p.readers.Add(2)
	go p.readLines(p.stdout, EventStdout)
	go p.readLines(p.stderr, EventStderr)
	go p.waitForExit()
}

// readLines splits r into lines and emits them. Lines longer than the limit
// are emitted in limit-sized pieces. Read failures other than EOF become
// EventError.
func (p *Process) readLines(r io.Reader, kind EventKind) {
	defer p.readers.Done()

	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	split := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if len(chunk) > 0 {
			line = append(line, chunk...)
		}
		for len(line) >= p.lineLimit {
			p.emit(Event{Kind: kind, Line: clone(line[:p.lineLimit]), Timestamp: time.Now()})
			line = line[p.lineLimit:]
			split = true
		}
		if err != nil {
			if len(line) > 0 {
				p.emit(Event{Kind: kind, Line: clone(line), Timestamp: time.Now()})
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Debug(log.CatSidecar, "read error", "stream", kind, "error", err)
				p.emit(Event{
					Kind:      EventError,
					Message:   fmt.Sprintf("reading %s: %v", kind, err),
					Timestamp: time.Now(),
				})
			}
			return
		}
		if !isPrefix {
			if len(line) > 0 || !split {
				p.emit(Event{Kind: kind, Line: clone(line), Timestamp: time.Now()})
			}
			line = line[:0]
			split = false
		}
	}
}

// waitForExit waits for both pipes to drain, reaps the process, emits
// Terminated and closes the stream.
func (p *Process) waitForExit() {
	defer close(p.events)
	defer close(p.done)
	defer p.group.release()

	p.readers.Wait()
	err := p.cmd.Wait()

	status := exitStatusOf(p.cmd.ProcessState)
	p.statusMu.Lock()
	p.exitStatus = &status
	p.statusMu.Unlock()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.emit(Event{Kind: EventError, Message: fmt.Sprintf("waiting for sidecar: %v", err), Timestamp: time.Now()})
	}

	log.Debug(log.CatSidecar, "process exited", "pid", p.PID(), "status", status)
	p.emit(Event{Kind: EventTerminated, Status: status, Timestamp: time.Now()})
}

func exitStatusOf(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	return ExitStatus{Code: state.ExitCode(), Signal: signalOf(state)}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

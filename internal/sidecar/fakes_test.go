package sidecar

import (
	"errors"
	"sync"
	"sync/atomic"
)

// recorder captures the order of side effects across fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

type fakeHandle struct {
	pid        int
	terminated atomic.Int32
	err        error
	rec        *recorder
}

func (h *fakeHandle) PID() int { return h.pid }

func (h *fakeHandle) Terminate() error {
	h.terminated.Add(1)
	h.rec.add("terminate")
	return h.err
}

type fakeNotifier struct {
	mu       sync.Mutex
	names    []string
	payloads []any
	err      error
	rec      *recorder
}

func (n *fakeNotifier) Notify(name string, payload any) error {
	n.mu.Lock()
	n.names = append(n.names, name)
	n.payloads = append(n.payloads, payload)
	n.mu.Unlock()
	n.rec.add("notify")
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.names)
}

type fakeHost struct {
	mu       sync.Mutex
	codes    []int
	restarts int
	rec      *recorder
}

func (h *fakeHost) Exit(code int) {
	h.mu.Lock()
	h.codes = append(h.codes, code)
	h.mu.Unlock()
	h.rec.add("exit")
}

func (h *fakeHost) Restart() {
	h.mu.Lock()
	h.restarts++
	h.mu.Unlock()
	h.rec.add("restart")
}

func (h *fakeHost) exitCodes() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int, len(h.codes))
	copy(out, h.codes)
	return out
}

func (h *fakeHost) restartCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restarts
}

type fakeCloseRequest struct {
	prevented atomic.Bool
	rec       *recorder
}

func (c *fakeCloseRequest) PreventClose() {
	c.prevented.Store(true)
	c.rec.add("prevent_close")
}

var errKillFailed = errors.New("kill failed")

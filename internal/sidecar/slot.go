package sidecar

import (
	"errors"
	"sync"
)

var (
	// ErrSlotOccupied is returned when Store is called on a slot that was
	// already filled once.
	ErrSlotOccupied = errors.New("sidecar: slot already filled")
	// ErrAlreadyTerminated is returned by Handle.Terminate when the process
	// is already gone.
	ErrAlreadyTerminated = errors.New("sidecar: process already terminated")
)

// Handle is the capability to stop a live worker process.
type Handle interface {
	// PID returns the OS process id.
	PID() int
	// Terminate kills the process. It is only ever called once per handle
	// because the slot is emptied atomically on take.
	Terminate() error
}

// Slot holds at most one Handle. It is filled once and emptied by the first
// consumer that takes from it; it is never refilled.
type Slot struct {
	mu     sync.Mutex
	handle Handle
	filled bool
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Store places h into the slot. Only the first call succeeds.
func (s *Slot) Store(h Handle) error {
	if h == nil {
		return errors.New("sidecar: cannot store nil handle")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filled {
		return ErrSlotOccupied
	}
	s.handle = h
	s.filled = true
	return nil
}

// Take removes and returns the handle, or nil if the slot is empty.
func (s *Slot) Take() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handle
	s.handle = nil
	return h
}

// TakeAndTerminate takes the handle and terminates it without releasing the
// lock in between. A concurrent caller blocks until the kill has been
// issued and then finds the slot empty. It reports whether a handle was
// present; the error is the result of Terminate.
func (s *Slot) TakeAndTerminate() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handle
	if h == nil {
		return false, nil
	}
	s.handle = nil
	return true, h.Terminate()
}

// Occupied reports whether a handle is currently held.
func (s *Slot) Occupied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

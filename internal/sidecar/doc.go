// Package sidecar supervises the single long-running worker process that
// runs alongside the shell window.
//
// # Components
//
//   - Slot holds the one live Handle. Every consumer removes the handle with
//     Take or TakeAndTerminate, so a process is terminated at most once.
//   - Launcher resolves and starts the worker and returns a Process, which is
//     both the Handle and the source of the ordered Event stream.
//   - Relay drains the Event stream for the life of the application and turns
//     fatal events (Error, Terminated, end of stream) into an application exit.
//   - Supervisor implements the four lifecycle hooks (close requested,
//     destroyed, exit requested, restart) on top of one idempotent cleanup.
//
// # State
//
//	NotStarted --launch ok--> Running --fatal event or any hook--> ShuttingDown
//	NotStarted --launch failed--> ShuttingDown
//
// ShuttingDown is terminal. A slot that has been emptied is never refilled.
package sidecar

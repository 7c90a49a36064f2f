// Package watcher reports when the sidecar executable is replaced on disk,
// so the user can restart onto the new build.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/tether/internal/log"
	"github.com/zjrosen/tether/internal/sidecar"
)

// Change describes a new build of the watched binary.
type Change struct {
	Path        string
	Fingerprint string
}

// Watcher monitors one executable. Bursts of events are debounced and a
// Change is only reported when the file content differs from the last
// reported (or initial) fingerprint.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration
	last      string
	changes   chan Change
	done      chan struct{}
	stopOnce  sync.Once
}

// Config holds watcher configuration options.
type Config struct {
	Path        string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		DebounceDur: 500 * time.Millisecond,
	}
}

// New creates a watcher for cfg.Path.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsWatcher: fsw,
		path:      filepath.Clean(cfg.Path),
		debounce:  cfg.DebounceDur,
		changes:   make(chan Change, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. The directory is watched rather than the file
// itself so replacement by rename is seen.
func (w *Watcher) Start() (<-chan Change, error) {
	w.last, _ = sidecar.Fingerprint(w.path)

	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}
	log.Debug(log.CatWatcher, "Watching sidecar binary", "path", w.path)

	go w.loop()
	return w.changes, nil
}

// Stop terminates the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) loop() {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.check()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "watch error", "error", err)

		case <-w.done:
			return
		}
	}
}

// check fingerprints the binary and reports a change. A missing file is
// treated as mid-replacement and ignored.
func (w *Watcher) check() {
	fp, err := sidecar.Fingerprint(w.path)
	if err != nil {
		log.Debug(log.CatWatcher, "binary not readable yet", "path", w.path, "error", err)
		return
	}
	if fp == w.last {
		return
	}
	w.last = fp
	log.Info(log.CatWatcher, "Sidecar binary changed", "path", w.path, "fingerprint", fp)

	// Keep only the newest change if the consumer is behind.
	select {
	case <-w.changes:
	default:
	}
	select {
	case w.changes <- Change{Path: w.path, Fingerprint: fp}:
	default:
	}
}

func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// Package log provides structured logging for tether.
// Entries are appended to a log file as
//
//	2006-01-02T15:04:05 [LEVEL] [category] message key=value ...
//
// and republished on a pubsub broker so the window can tail them.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/tether/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config value to a Level. Unknown values yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category groups related log messages.
type Category string

const (
	CatSidecar   Category = "sidecar"   // launcher and child process
	CatRelay     Category = "relay"     // event relay loop
	CatLifecycle Category = "lifecycle" // close/destroy/exit/restart hooks
	CatUpdate    Category = "update"    // update check and install
	CatHistory   Category = "history"   // run ledger
	CatConfig    Category = "config"    // configuration loading
	CatWatcher   Category = "watcher"   // sidecar binary watcher
	CatUI        Category = "ui"
	CatCmd       Category = "cmd"
	CatCache     Category = "cache"
	CatTrace     Category = "trace"
)

// Logger writes formatted entries to a writer and a broker.
type Logger struct {
	mu       sync.Mutex
	writer   io.Writer
	closer   io.Closer
	minLevel Level
	broker   *pubsub.Broker[string]
}

var (
	stdMu sync.RWMutex
	std   *Logger
)

func current() *Logger {
	stdMu.RLock()
	defer stdMu.RUnlock()
	return std
}

func install(l *Logger) {
	stdMu.Lock()
	prev := std
	std = l
	stdMu.Unlock()
	if prev != nil && prev != l && prev.broker != nil {
		prev.broker.Close()
	}
}

// Init opens path for appending and installs it as the global log sink.
// The returned cleanup function uninstalls the logger and closes the file.
func Init(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: log path comes from config
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	l := newLogger(f)
	l.closer = f
	install(l)

	return func() {
		uninstall(l)
		_ = f.Close()
	}, nil
}

// InitWriter installs a logger that writes to w. Used by tests and by
// subcommands that log to stderr.
func InitWriter(w io.Writer) func() {
	l := newLogger(w)
	install(l)
	return func() { uninstall(l) }
}

func uninstall(l *Logger) {
	stdMu.Lock()
	if std == l {
		std = nil
	}
	stdMu.Unlock()
	if l.broker != nil {
		l.broker.Close()
	}
}

func newLogger(w io.Writer) *Logger {
	return &Logger{
		writer:   w,
		minLevel: LevelInfo,
		broker:   pubsub.NewBroker[string](),
	}
}

// SetMinLevel sets the minimum level of the installed logger.
func SetMinLevel(level Level) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	write(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	write(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	write(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	write(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value appended as the "error" field.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	write(LevelError, cat, msg, fields...)
}

// Format renders one entry without the trailing newline.
func Format(ts time.Time, level Level, cat Category, msg string, fields ...any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] [%s] %s", ts.Format("2006-01-02T15:04:05"), level, cat, msg)
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	if len(fields)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", fields[len(fields)-1])
	}
	return b.String()
}

func write(level Level, cat Category, msg string, fields ...any) {
	l := current()
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	entry := Format(time.Now(), level, cat, msg, fields...)
	if l.writer != nil {
		_, _ = io.WriteString(l.writer, entry+"\n")
	}
	if l.broker != nil {
		_, _ = l.broker.Publish(pubsub.LogEvent, entry)
	}
}

// LogEvent is a pubsub event containing a log entry.
type LogEvent = pubsub.Event[string]

// LogListener wraps a continuous listener for log events.
type LogListener = pubsub.ContinuousListener[string]

// NewListener subscribes to log entries for the lifetime of ctx.
// Returns nil when no logger is installed.
func NewListener(ctx context.Context) *LogListener {
	l := current()
	if l == nil || l.broker == nil {
		return nil
	}
	return pubsub.NewContinuousListener(ctx, l.broker)
}

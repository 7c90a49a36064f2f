// Package commands dispatches named commands from the window (or the CLI)
// to backend handlers. Arguments are a JSON object.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/zjrosen/tether/internal/log"
	"github.com/zjrosen/tether/internal/sidecar"
	"github.com/zjrosen/tether/internal/updater"
)

// Command names.
const (
	Greet           = "greet"
	GracefulRestart = "graceful_restart"
	FetchUpdate     = "fetch_update"
	InstallUpdate   = "install_update"
)

// ErrUnknownCommand is returned by Invoke for unregistered names.
var ErrUnknownCommand = errors.New("commands: unknown command")

// HandlerFunc runs a command. args is always a JSON object.
type HandlerFunc func(ctx context.Context, args gjson.Result) (any, error)

// UpdateService is the part of the updater used by the update commands.
type UpdateService interface {
	Check(ctx context.Context) (*updater.Metadata, error)
	Install(ctx context.Context, onEvent func(updater.DownloadEvent)) error
}

// Dispatcher maps command names to handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register adds or replaces a handler.
func (d *Dispatcher) Register(name string, h HandlerFunc) {
	d.handlers[name] = h
}

// Names returns the registered command names, sorted.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named command. An empty args string means no arguments.
func (d *Dispatcher) Invoke(ctx context.Context, name, args string) (any, error) {
	h, ok := d.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	if !gjson.Valid(args) {
		return nil, fmt.Errorf("commands: %s: arguments are not valid JSON", name)
	}
	parsed := gjson.Parse(args)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("commands: %s: arguments must be a JSON object", name)
	}

	log.Debug(log.CatCmd, "Invoking command", "name", name)
	result, err := h(ctx, parsed)
	if err != nil {
		log.Debug(log.CatCmd, "Command failed", "name", name, "error", err)
	}
	return result, err
}

// GreetMessage is the greeting returned by the greet command.
func GreetMessage(name string) string {
	return fmt.Sprintf("Hello, %s! You've been greeted from Go!", name)
}

// GreetHandler returns the greeting for args.name.
func GreetHandler() HandlerFunc {
	return func(_ context.Context, args gjson.Result) (any, error) {
		return GreetMessage(args.Get("name").String()), nil
	}
}

// RestartHandler stops the sidecar and restarts the application.
func RestartHandler(r sidecar.Restarter) HandlerFunc {
	return func(context.Context, gjson.Result) (any, error) {
		r.Restart()
		return nil, nil
	}
}

// FetchUpdateHandler returns the available update metadata, or nil.
func FetchUpdateHandler(u UpdateService) HandlerFunc {
	return func(ctx context.Context, _ gjson.Result) (any, error) {
		meta, err := u.Check(ctx)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			return nil, nil
		}
		return meta, nil
	}
}

// InstallUpdateHandler downloads and installs the update, forwarding each
// download event to n under the install_update name, then restarts.
func InstallUpdateHandler(u UpdateService, n sidecar.Notifier, r sidecar.Restarter) HandlerFunc {
	return func(ctx context.Context, _ gjson.Result) (any, error) {
		err := u.Install(ctx, func(ev updater.DownloadEvent) {
			if nerr := n.Notify(InstallUpdate, ev); nerr != nil {
				log.Debug(log.CatUpdate, "progress not delivered", "error", nerr)
			}
		})
		if err != nil {
			return nil, err
		}
		r.Restart()
		return nil, nil
	}
}

// Register installs the standard command set. update may be nil, in which
// case the update commands are not registered.
func Register(d *Dispatcher, r sidecar.Restarter, n sidecar.Notifier, u UpdateService) {
	d.Register(Greet, GreetHandler())
	d.Register(GracefulRestart, RestartHandler(r))
	if u != nil {
		d.Register(FetchUpdate, FetchUpdateHandler(u))
		d.Register(InstallUpdate, InstallUpdateHandler(u, n, r))
	}
}

// Package app hosts a tether run: it launches the sidecar, wires the relay,
// the lifecycle hooks and the window together, and reports how the run ended.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/tether/internal/commands"
	"github.com/zjrosen/tether/internal/config"
	"github.com/zjrosen/tether/internal/flags"
	"github.com/zjrosen/tether/internal/history"
	"github.com/zjrosen/tether/internal/log"
	"github.com/zjrosen/tether/internal/notify"
	"github.com/zjrosen/tether/internal/paths"
	"github.com/zjrosen/tether/internal/sidecar"
	"github.com/zjrosen/tether/internal/tracing"
	"github.com/zjrosen/tether/internal/ui/window"
	"github.com/zjrosen/tether/internal/updater"
	"github.com/zjrosen/tether/internal/watcher"
)

// recordTimeout bounds history writes made during shutdown.
const recordTimeout = 5 * time.Second

// Options configures an App.
type Options struct {
	Config  config.Config
	Version string

	// Signals replaces the OS signal subscription when set.
	Signals <-chan os.Signal

	// ProgramOptions are appended to the window's program options.
	ProgramOptions []tea.ProgramOption

	// LauncherOptions are passed to the sidecar launcher.
	LauncherOptions []sidecar.LauncherOption

	// HTTPClient is used for update checks. Nil uses a client with the
	// configured timeout.
	HTTPClient *http.Client
}

// Result is the outcome of a run.
type Result struct {
	// Code is the process exit status.
	Code int
	// Restart is set when the application should start again.
	Restart bool
	// Err is the launch error when the sidecar never started.
	Err error
}

// App is one application run.
type App struct {
	opts  Options
	cfg   config.Config
	flags *flags.Registry

	emitter    *notify.Emitter
	slot       *sidecar.Slot
	shell      *shell
	supervisor *sidecar.Supervisor
	dispatcher *commands.Dispatcher
	updates    *updater.Updater
	history    *history.Store
	tracer     *tracing.Provider

	runID string
	span  *tracing.RunSpan
	ready chan struct{}
}

// New prepares a run. History and tracing problems are logged and leave
// the feature off; they never prevent the sidecar from starting.
func New(opts Options) *App {
	cfg := opts.Config
	a := &App{
		opts:    opts,
		cfg:     cfg,
		flags:   flags.New(cfg.Flags),
		emitter: notify.NewEmitter(),
		slot:    sidecar.NewSlot(),
		shell:   &shell{},
		runID:   history.NewRunID(),
		ready:   make(chan struct{}),
	}
	a.supervisor = sidecar.NewSupervisor(a.slot, a.shell, sidecar.WithShutdown(a.recordShutdown))

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.HistoryPath())
		if err != nil {
			log.ErrorErr(log.CatHistory, "History disabled", err)
		} else {
			a.history = store
		}
	}

	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		FilePath:       cfg.Tracing.TracesPath(),
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		ServiceVersion: opts.Version,
	})
	if err != nil {
		log.ErrorErr(log.CatTrace, "Tracing disabled", err)
		tp, _ = tracing.NewProvider(tracing.Config{})
	}
	a.tracer = tp

	if cfg.Update.Endpoint != "" {
		checker := updater.NewChecker(updater.Options{
			Endpoint:       cfg.Update.Endpoint,
			CurrentVersion: opts.Version,
			CacheTTL:       cfg.Update.CacheTTL,
			Timeout:        cfg.Update.Timeout,
			Client:         opts.HTTPClient,
		})
		target, err := os.Executable()
		if err != nil {
			log.ErrorErr(log.CatUpdate, "Updates disabled", err)
		} else {
			a.updates = updater.New(checker, updater.ReplaceExecutable{Target: target})
		}
	}

	a.dispatcher = commands.NewDispatcher()
	var updates commands.UpdateService
	if a.updates != nil {
		updates = a.updates
	}
	commands.Register(a.dispatcher, a.supervisor, a.emitter, updates)
	return a
}

// Dispatcher returns the command dispatcher of the run.
func (a *App) Dispatcher() *commands.Dispatcher {
	return a.dispatcher
}

// Supervisor returns the lifecycle supervisor of the run.
func (a *App) Supervisor() *sidecar.Supervisor {
	return a.supervisor
}

// Ready is closed once the sidecar runs and the window is about to start.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Run launches the sidecar and blocks until the application exits.
// A launch failure returns code 1 without ever showing the window.
func (a *App) Run(ctx context.Context) Result {
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exe, proc, err := a.launch()
	_, span := tracing.StartRun(ctx, a.tracer.Tracer(), a.runID, exe)
	a.span = span
	if err != nil {
		log.ErrorErr(log.CatSidecar, "Failed to spawn sidecar", err)
		span.LaunchFailed(err)
		a.recordSpawnFailure(exe, err)
		return Result{Code: 1, Err: err}
	}

	if err := a.slot.Store(proc); err != nil {
		_ = proc.Terminate()
		span.LaunchFailed(err)
		return Result{Code: 1, Err: err}
	}
	a.supervisor.MarkRunning()

	fingerprint, err := sidecar.Fingerprint(exe)
	if err != nil {
		log.Debug(log.CatSidecar, "fingerprint unavailable", "error", err)
	}
	span.Launched(proc.PID(), fingerprint)
	a.recordLaunch(ctx, exe, fingerprint, proc)

	model := window.New(ctx, window.Config{
		Title:         a.cfg.Window.Title,
		MaxLines:      a.cfg.Window.MaxLines,
		MarkdownStyle: a.cfg.Window.MarkdownStyle,
		LogTail:       a.flags.Enabled(flags.FlagLogTail),
		GreetName:     greetName(),
	}, window.Deps{
		Invoker:       a.dispatcher,
		OnClose:       a.supervisor.CloseRequested,
		Notifications: a.emitter.Broker(),
	})
	programOpts := append([]tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithFilter(window.Filter),
		tea.WithoutSignalHandler(),
	}, a.opts.ProgramOptions...)
	program := tea.NewProgram(model, programOpts...)
	a.shell.attach(program)

	g, gctx := errgroup.WithContext(ctx)

	relayCtx, stopRelay := context.WithCancel(gctx)
	defer stopRelay()
	a.supervisor.AttachRelay(stopRelay)
	relay := sidecar.NewRelay(a.slot, a.emitter, a.shell,
		sidecar.WithObserver(func(ev sidecar.Event) {
			a.emitter.Output(ev)
			span.Observe(ev)
		}),
		sidecar.WithRelayShutdown(a.recordShutdown),
	)
	g.Go(func() error {
		reason := relay.Run(relayCtx, proc.Events())
		log.Debug(log.CatRelay, "relay stopped", "reason", reason)
		return nil
	})

	g.Go(func() error {
		a.watchSignals(gctx)
		return nil
	})

	g.Go(func() error {
		program.Send(window.StatusMsg{
			State:      a.supervisor.State(),
			PID:        proc.PID(),
			Executable: exe,
		})
		return nil
	})

	if a.flags.Enabled(flags.FlagWatchSidecar) {
		a.watchBinary(gctx, g, exe)
	}

	if a.updates != nil && a.cfg.Update.CheckOnStartup {
		g.Go(func() error {
			a.checkForUpdate(gctx)
			return nil
		})
	}

	close(a.ready)
	log.Info(log.CatLifecycle, "Window starting", "run", a.runID)

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.ErrorErr(log.CatUI, "Window failed", err)
		a.shell.Exit(1)
	}

	// The window is gone and the application is about to exit. Both hooks
	// are no-ops when an earlier path already stopped the sidecar.
	a.supervisor.Destroyed()
	a.supervisor.ExitRequested()

	cancel()
	_ = g.Wait()

	code, restart := a.shell.result()
	return Result{Code: code, Restart: restart}
}

func (a *App) launch() (string, *sidecar.Process, error) {
	dirs := sidecar.DefaultDirs()
	if a.cfg.Sidecar.Dir != "" {
		dirs = []string{paths.ExpandHome(a.cfg.Sidecar.Dir)}
	}
	exe, err := sidecar.Resolve(dirs, a.cfg.Sidecar.Name)
	if err != nil {
		return a.cfg.Sidecar.Name, nil, err
	}
	launcher := sidecar.NewLauncher(sidecar.LaunchConfig{
		Executable: exe,
		Args:       a.cfg.Sidecar.Args,
		Env:        a.cfg.Sidecar.Env,
		LineLimit:  a.cfg.Sidecar.LineBuffer,
	}, a.opts.LauncherOptions...)
	proc, err := launcher.Launch()
	return exe, proc, err
}

// watchSignals maps SIGINT and SIGTERM to the exit-request hook. A
// cancelled ctx also ends the application.
func (a *App) watchSignals(ctx context.Context) {
	signals := a.opts.Signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	select {
	case sig := <-signals:
		log.Info(log.CatLifecycle, "Signal received", "signal", sig)
		a.supervisor.ExitRequested()
		a.shell.Exit(0)
	case <-ctx.Done():
		a.shell.Exit(0)
	}
}

func (a *App) watchBinary(ctx context.Context, g *errgroup.Group, exe string) {
	w, err := watcher.New(watcher.DefaultConfig(exe))
	if err != nil {
		log.ErrorErr(log.CatWatcher, "Binary watcher disabled", err)
		return
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		log.ErrorErr(log.CatWatcher, "Binary watcher disabled", err)
		return
	}
	g.Go(func() error {
		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return nil
			case change, ok := <-changes:
				if !ok {
					return nil
				}
				log.Info(log.CatWatcher, "Sidecar binary changed", "path", change.Path, "fingerprint", change.Fingerprint)
				_ = a.emitter.Notify(notify.BinaryChanged, change)
			}
		}
	})
}

func (a *App) checkForUpdate(ctx context.Context) {
	meta, err := a.updates.Check(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn(log.CatUpdate, "Update check failed", "error", err)
		}
		return
	}
	if meta == nil {
		log.Debug(log.CatUpdate, "no update available")
		return
	}
	log.Info(log.CatUpdate, "Update available", "version", meta.Version, "current", meta.CurrentVersion)
	_ = a.emitter.Notify(notify.UpdateAvailable, meta)
}

// recordShutdown runs once, on whichever path emptied the slot.
func (a *App) recordShutdown(reason sidecar.ExitReason, status sidecar.ExitStatus) {
	a.supervisor.MarkShuttingDown()
	if a.span != nil {
		a.span.End(reason, status)
	}
	if a.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := a.history.RecordExit(ctx, a.runID, reason, status); err != nil {
		log.ErrorErr(log.CatHistory, "Failed to record exit", err, "run", a.runID)
	}
}

func (a *App) recordLaunch(ctx context.Context, exe, fingerprint string, proc *sidecar.Process) {
	if a.history == nil {
		return
	}
	err := a.history.RecordLaunch(ctx, history.Run{
		ID:          a.runID,
		Executable:  exe,
		Fingerprint: fingerprint,
		PID:         proc.PID(),
		StartedAt:   proc.StartedAt(),
		TraceID:     a.span.TraceID(),
	})
	if err != nil {
		log.ErrorErr(log.CatHistory, "Failed to record launch", err, "run", a.runID)
	}
}

func (a *App) recordSpawnFailure(exe string, cause error) {
	if a.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := a.history.RecordSpawnFailure(ctx, a.runID, exe, cause); err != nil {
		log.ErrorErr(log.CatHistory, "Failed to record spawn failure", err, "run", a.runID)
	}
}

func (a *App) close() {
	a.emitter.Close()
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.ErrorErr(log.CatHistory, "Failed to close history", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		log.ErrorErr(log.CatTrace, "Failed to flush traces", err)
	}
}

func greetName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "friend"
}

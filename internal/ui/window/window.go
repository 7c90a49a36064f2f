// Package window is the terminal front end: it shows the sidecar's output,
// surfaces notifications as toasts and turns key presses into commands.
package window

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/tether/internal/commands"
	"github.com/zjrosen/tether/internal/log"
	"github.com/zjrosen/tether/internal/notify"
	"github.com/zjrosen/tether/internal/pubsub"
	"github.com/zjrosen/tether/internal/sidecar"
	"github.com/zjrosen/tether/internal/ui/logtail"
	"github.com/zjrosen/tether/internal/ui/styles"
	"github.com/zjrosen/tether/internal/ui/toaster"
	"github.com/zjrosen/tether/internal/updater"
)

const (
	defaultWidth   = 80
	defaultHeight  = 24
	logTailLines   = 6
	defaultMaxLine = 1000
)

// Invoker runs a named command with JSON arguments.
type Invoker interface {
	Invoke(ctx context.Context, name, args string) (any, error)
}

// Config holds the window options.
type Config struct {
	Title         string
	MaxLines      int
	MarkdownStyle string
	LogTail       bool
	GreetName     string
}

// Deps are the collaborators of the window. All are optional.
type Deps struct {
	Invoker       Invoker
	OnClose       func(sidecar.CloseRequest)
	Notifications *pubsub.Broker[notify.Notification]
}

// Model is the bubbletea model of the window.
type Model struct {
	ctx  context.Context
	cfg  Config
	deps Deps
	keys KeyMap

	notifications *pubsub.ContinuousListener[notify.Notification]
	logs          *log.LogListener

	viewport viewport.Model
	help     help.Model
	toaster  toaster.Model
	tail     logtail.Model

	lines  []notify.OutputLine
	status StatusMsg

	update     *updater.Metadata
	notes      string
	showNotes  bool
	installing bool
	progress   downloadProgress
	statusText string

	closing bool
	exiting bool
	code    int

	width  int
	height int
}

type downloadProgress struct {
	total      int64
	downloaded int64
	known      bool
}

// New creates the window. The listeners live until ctx is cancelled.
func New(ctx context.Context, cfg Config, deps Deps) Model {
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = defaultMaxLine
	}
	if cfg.Title == "" {
		cfg.Title = "tether"
	}
	m := Model{
		ctx:     ctx,
		cfg:     cfg,
		deps:    deps,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		toaster: toaster.New(),
		tail:    logtail.New(logTailLines),
		width:   defaultWidth,
		height:  defaultHeight,
	}
	if deps.Notifications != nil {
		m.notifications = pubsub.NewContinuousListener(ctx, deps.Notifications)
	}
	if cfg.LogTail {
		m.logs = log.NewListener(ctx)
		m.keys.LogLevel.SetEnabled(true)
	}
	if deps.Invoker == nil {
		m.keys.Restart.SetEnabled(false)
		m.keys.CheckUpdate.SetEnabled(false)
		m.keys.Greet.SetEnabled(false)
	}
	m.viewport = viewport.New(m.width, m.viewportHeight())
	m.viewport.KeyMap = viewportKeys()
	m.refreshContent()
	return m
}

// Init starts the listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.notifications.Listen(), m.logs.Listen())
}

// ExitCode returns the code passed with ExitMsg.
func (m Model) ExitCode() int {
	return m.code
}

// Exiting reports whether an ExitMsg was received.
func (m Model) Exiting() bool {
	return m.exiting
}

// Lines returns the sidecar output currently held.
func (m Model) Lines() []notify.OutputLine {
	return m.lines
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.tail.SetWidth(msg.Width)
		m.viewport.Width = msg.Width
		m.viewport.Height = m.viewportHeight()
		if m.update != nil {
			m.notes = renderNotes(m.update, m.width, m.cfg.MarkdownStyle)
		}
		m.refreshContent()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pubsub.Event[notify.Notification]:
		cmd := m.handleNotification(msg.Payload)
		return m, tea.Batch(cmd, m.notifications.Listen())

	case pubsub.Event[string]:
		m.tail.Append(msg.Payload)
		return m, m.logs.Listen()

	case StatusMsg:
		m.status = msg
		return m, nil

	case commandResultMsg:
		cmd := m.handleResult(msg)
		return m, cmd

	case CloseRequestedMsg:
		return m.requestClose()

	case closeHandledMsg:
		if msg.prevented {
			// The host decides when to exit and sends ExitMsg.
			return m, nil
		}
		m.exiting = true
		return m, tea.Quit

	case ExitMsg:
		m.exiting = true
		m.code = msg.Code
		return m, tea.Quit

	case toaster.DismissMsg:
		m.toaster = m.toaster.Update(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.requestClose()

	case key.Matches(msg, m.keys.Restart):
		m.statusText = "Restarting…"
		return m, m.invoke(commands.GracefulRestart, "")

	case key.Matches(msg, m.keys.CheckUpdate):
		m.statusText = "Checking for updates…"
		return m, m.invoke(commands.FetchUpdate, "")

	case key.Matches(msg, m.keys.Install):
		if m.installing {
			return m, nil
		}
		m.installing = true
		m.progress = downloadProgress{}
		m.statusText = "Downloading update…"
		return m, m.invoke(commands.InstallUpdate, "")

	case key.Matches(msg, m.keys.Notes):
		m.showNotes = !m.showNotes
		m.refreshContent()
		return m, nil

	case key.Matches(msg, m.keys.Greet):
		args, _ := json.Marshal(map[string]string{"name": m.cfg.GreetName})
		return m, m.invoke(commands.Greet, string(args))

	case key.Matches(msg, m.keys.LogLevel):
		m.tail.CycleLevel()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// requestClose runs the close handler once. Without a handler the window
// simply quits.
func (m Model) requestClose() (tea.Model, tea.Cmd) {
	if m.closing || m.exiting {
		return m, nil
	}
	m.closing = true
	m.statusText = "Stopping sidecar…"
	onClose := m.deps.OnClose
	if onClose == nil {
		m.exiting = true
		return m, tea.Quit
	}
	return m, func() tea.Msg {
		req := &closeRequest{}
		onClose(req)
		return closeHandledMsg{prevented: req.prevented.Load()}
	}
}

func (m Model) invoke(name, args string) tea.Cmd {
	inv := m.deps.Invoker
	if inv == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		result, err := inv.Invoke(ctx, name, args)
		return commandResultMsg{name: name, result: result, err: err}
	}
}

func (m *Model) handleResult(msg commandResultMsg) tea.Cmd {
	if msg.err != nil {
		log.Debug(log.CatUI, "command failed", "name", msg.name, "error", msg.err)
		m.statusText = ""
		if msg.name == commands.InstallUpdate {
			m.installing = false
		}
		return m.toast(msg.err.Error(), toaster.StyleError)
	}

	switch msg.name {
	case commands.Greet:
		text, _ := msg.result.(string)
		return m.toast(text, toaster.StyleSuccess)

	case commands.FetchUpdate:
		m.statusText = ""
		meta, _ := msg.result.(*updater.Metadata)
		if meta == nil {
			return m.toast("tether is up to date", toaster.StyleInfo)
		}
		return m.setUpdate(meta)

	case commands.InstallUpdate, commands.GracefulRestart:
		m.statusText = "Restarting…"
	}
	return nil
}

func (m *Model) handleNotification(n notify.Notification) tea.Cmd {
	switch n.Name {
	case notify.SidecarOutput:
		if line, ok := n.Payload.(notify.OutputLine); ok {
			m.appendLine(line)
		}
		return nil

	case notify.SidecarError:
		m.status.State = sidecar.StateShuttingDown
		return m.toast(n.Message(), toaster.StyleError)

	case notify.BinaryChanged:
		return m.toast("Sidecar binary changed on disk. Press r to restart.", toaster.StyleWarn)

	case notify.UpdateAvailable:
		meta, ok := n.Payload.(*updater.Metadata)
		if !ok || meta == nil {
			return nil
		}
		return m.setUpdate(meta)

	case notify.InstallUpdate:
		if ev, ok := n.Payload.(updater.DownloadEvent); ok {
			m.applyDownload(ev)
		}
		return nil

	default:
		if text := n.Message(); text != "" {
			return m.toast(text, toaster.StyleInfo)
		}
		return nil
	}
}

func (m *Model) setUpdate(meta *updater.Metadata) tea.Cmd {
	m.update = meta
	m.notes = renderNotes(meta, m.width, m.cfg.MarkdownStyle)
	m.keys.Install.SetEnabled(true)
	m.keys.Notes.SetEnabled(meta.Notes != "")
	return m.toast(fmt.Sprintf("Update %s available (current %s). Press i to install.", meta.Version, meta.CurrentVersion), toaster.StyleInfo)
}

func (m *Model) applyDownload(ev updater.DownloadEvent) {
	switch ev.Event {
	case updater.DownloadStarted:
		m.progress = downloadProgress{}
		if ev.ContentLength != nil {
			m.progress.total = *ev.ContentLength
			m.progress.known = true
		}
	case updater.DownloadProgress:
		m.progress.downloaded += int64(ev.ChunkLength)
	case updater.DownloadFinished:
		m.statusText = "Installing update…"
		return
	}
	m.statusText = m.progress.String()
}

func (p downloadProgress) String() string {
	if !p.known || p.total <= 0 {
		return "Downloading update " + styles.FormatBytes(p.downloaded)
	}
	pct := p.downloaded * 100 / p.total
	return fmt.Sprintf("Downloading update %s / %s (%d%%)",
		styles.FormatBytes(p.downloaded), styles.FormatBytes(p.total), pct)
}

func (m *Model) appendLine(line notify.OutputLine) {
	follow := m.viewport.AtBottom()
	m.lines = append(m.lines, line)
	if over := len(m.lines) - m.cfg.MaxLines; over > 0 {
		m.lines = append(m.lines[:0:0], m.lines[over:]...)
	}
	if m.showNotes {
		return
	}
	m.viewport.SetContent(m.renderLines())
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) refreshContent() {
	if m.showNotes && m.notes != "" {
		m.viewport.SetContent(m.notes)
		m.viewport.GotoTop()
		return
	}
	m.viewport.SetContent(m.renderLines())
	m.viewport.GotoBottom()
}

func (m *Model) toast(text string, style toaster.Style) tea.Cmd {
	var cmd tea.Cmd
	m.toaster, cmd = m.toaster.Show(text, style)
	return cmd
}

func (m Model) viewportHeight() int {
	h := m.height - 2
	if m.cfg.LogTail {
		h -= m.tail.Height()
	}
	return max(h, 1)
}

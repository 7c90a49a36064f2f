// Package logtail renders the last few application log entries under the
// sidecar output.
package logtail

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/zjrosen/tether/internal/log"
	"github.com/zjrosen/tether/internal/ui/styles"
)

// DefaultCapacity is the number of entries kept for filtering.
const DefaultCapacity = 500

// Model is the log tail pane state.
type Model struct {
	entries  []string
	capacity int
	minLevel log.Level
	width    int
	height   int
}

// New creates a tail that shows height lines.
func New(height int) Model {
	return Model{
		capacity: DefaultCapacity,
		minLevel: log.LevelInfo,
		height:   height,
	}
}

// Height returns the number of rows the pane occupies, divider included.
func (m Model) Height() int {
	return m.height + 1
}

// SetWidth updates the pane width.
func (m *Model) SetWidth(width int) {
	m.width = width
}

// MinLevel returns the active filter level.
func (m Model) MinLevel() log.Level {
	return m.minLevel
}

// Append adds a formatted log entry, dropping the oldest past capacity.
func (m *Model) Append(entry string) {
	m.entries = append(m.entries, strings.TrimSuffix(entry, "\n"))
	if over := len(m.entries) - m.capacity; over > 0 {
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
	}
}

// CycleLevel steps the filter DEBUG -> INFO -> WARN -> ERROR -> DEBUG.
func (m *Model) CycleLevel() {
	if m.minLevel >= log.LevelError {
		m.minLevel = log.LevelDebug
		return
	}
	m.minLevel++
}

// Visible returns the entries passing the filter, newest last, at most height.
func (m Model) Visible() []string {
	var out []string
	for i := len(m.entries) - 1; i >= 0 && len(out) < m.height; i-- {
		if levelOf(m.entries[i]) >= m.minLevel {
			out = append(out, m.entries[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// View renders the divider and the visible entries, padded to height.
func (m Model) View() string {
	width := max(m.width, 10)
	label := " log ≥ " + m.minLevel.String() + " "
	divider := styles.DividerStyle.Render("──" + label + strings.Repeat("─", max(width-2-ansi.StringWidth(label), 0)))

	lines := make([]string, 0, m.height+1)
	lines = append(lines, divider)
	for _, entry := range m.Visible() {
		lines = append(lines, colorize(entry, width))
	}
	for len(lines) < m.height+1 {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// levelOf reads the level tag written by log.Format.
func levelOf(entry string) log.Level {
	switch {
	case strings.Contains(entry, "[ERROR]"):
		return log.LevelError
	case strings.Contains(entry, "[WARN]"):
		return log.LevelWarn
	case strings.Contains(entry, "[INFO]"):
		return log.LevelInfo
	case strings.Contains(entry, "[DEBUG]"):
		return log.LevelDebug
	default:
		return log.LevelError // unknown entries are always shown
	}
}

func colorize(entry string, maxWidth int) string {
	if ansi.StringWidth(entry) > maxWidth {
		entry = ansi.Truncate(entry, maxWidth-3, "...")
	}
	tag := "[" + levelOf(entry).String() + "]"
	if !strings.Contains(entry, tag) {
		tag = ""
	}
	return lipgloss.NewStyle().Foreground(styles.LevelColor(tag)).Render(entry)
}

// Package toaster provides a notification toast overlay component.
package toaster

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"

	"github.com/zjrosen/tether/internal/ui/styles"
)

// DefaultDuration is how long a toast stays up before it is dismissed.
const DefaultDuration = 4 * time.Second

// maxTextWidth caps the message width inside the toast box.
const maxTextWidth = 60

// Style determines the visual appearance of the toast.
type Style int

const (
	// StyleSuccess shows ✅ with green border.
	StyleSuccess Style = iota
	// StyleError shows ❌ with red border.
	StyleError
	// StyleInfo shows ℹ️ with blue border.
	StyleInfo
	// StyleWarn shows ⚠️ with yellow border.
	StyleWarn
)

// Model holds the toaster state.
type Model struct {
	message string
	style   Style
	visible bool
	seq     int
}

// New creates a new toaster model.
func New() Model {
	return Model{}
}

// Show displays a toast with the given message and style. The returned
// command dismisses it after DefaultDuration unless a newer toast replaced it.
func (m Model) Show(message string, style Style) (Model, tea.Cmd) {
	m.message = message
	m.style = style
	m.visible = true
	m.seq++
	return m, ScheduleDismiss(DefaultDuration, m.seq)
}

// Hide dismisses the toast.
func (m Model) Hide() Model {
	m.visible = false
	m.message = ""
	return m
}

// Visible returns whether the toast is currently showing.
func (m Model) Visible() bool {
	return m.visible
}

// Message returns the text of the visible toast.
func (m Model) Message() string {
	return m.message
}

// Style returns the style of the visible toast.
func (m Model) Style() Style {
	return m.style
}

// Update hides the toast when its own DismissMsg arrives.
func (m Model) Update(msg tea.Msg) Model {
	if d, ok := msg.(DismissMsg); ok && d.Seq == m.seq {
		return m.Hide()
	}
	return m
}

// View renders the toast box.
func (m Model) View() string {
	if !m.visible || m.message == "" {
		return ""
	}

	style := lipgloss.NewStyle().
		Padding(0, 1).
		Border(lipgloss.RoundedBorder())

	var icon string
	switch m.style {
	case StyleError:
		style = style.BorderForeground(styles.ToastBorderErrorColor)
		icon = "❌ "
	case StyleInfo:
		style = style.BorderForeground(styles.ToastBorderInfoColor)
		icon = "ℹ️ "
	case StyleWarn:
		style = style.BorderForeground(styles.ToastBorderWarnColor)
		icon = "⚠️ "
	default: // StyleSuccess
		style = style.BorderForeground(styles.ToastBorderSuccessColor)
		icon = "✅ "
	}

	return style.Render(icon + wordwrap.String(m.message, maxTextWidth))
}

// Overlay renders the toast bottom-centered on top of bg, one line above
// the bottom edge.
func (m Model) Overlay(bg string, width, height int) string {
	if !m.visible || m.message == "" {
		return bg
	}
	return placeBottom(m.View(), bg, width, height, 1)
}

// placeBottom draws fg over bg keeping the ANSI styling of both.
func placeBottom(fg, bg string, width, height, padY int) string {
	fgLines := strings.Split(fg, "\n")
	bgLines := strings.Split(bg, "\n")
	for len(bgLines) < height {
		bgLines = append(bgLines, strings.Repeat(" ", width))
	}

	x := max((width-lipgloss.Width(fg))/2, 0)
	y := max(height-len(fgLines)-padY, 0)

	for i, fgLine := range fgLines {
		row := y + i
		if row >= len(bgLines) {
			break
		}
		bgLine := bgLines[row]

		left := ansi.Truncate(bgLine, x, "")
		if w := ansi.StringWidth(left); w < x {
			left += strings.Repeat(" ", x-w)
		}
		var right string
		if end := x + ansi.StringWidth(fgLine); end < ansi.StringWidth(bgLine) {
			right = ansi.TruncateLeft(bgLine, end, "")
		}
		bgLines[row] = left + fgLine + right
	}
	return strings.Join(bgLines, "\n")
}

// DismissMsg signals that the toast with sequence Seq should be dismissed.
type DismissMsg struct {
	Seq int
}

// ScheduleDismiss returns a command that dismisses toast seq after d.
func ScheduleDismiss(d time.Duration, seq int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return DismissMsg{Seq: seq}
	})
}

package window

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/tether/internal/sidecar"
	"github.com/zjrosen/tether/internal/ui/markdown"
	"github.com/zjrosen/tether/internal/ui/styles"
	"github.com/zjrosen/tether/internal/updater"
)

// View renders the window.
func (m Model) View() string {
	parts := []string{m.header(), m.viewport.View()}
	if m.cfg.LogTail {
		parts = append(parts, m.tail.View())
	}
	parts = append(parts, m.footer())
	return m.toaster.Overlay(lipgloss.JoinVertical(lipgloss.Left, parts...), m.width, m.height)
}

func (m Model) header() string {
	title := styles.TitleStyle.Render(styles.TruncateString(m.cfg.Title, max(m.width/2, 1)))

	var badge string
	switch m.status.State {
	case sidecar.StateRunning:
		badge = styles.BadgeRunningStyle.Render("● running")
	case sidecar.StateShuttingDown:
		badge = styles.BadgeStoppedStyle.Render("■ stopped")
	default:
		badge = styles.BadgePendingStyle.Render("○ starting")
	}

	var detail string
	if m.status.Executable != "" {
		detail = filepath.Base(m.status.Executable)
	}
	if m.status.PID > 0 {
		detail = strings.TrimSpace(detail + " pid " + strconv.Itoa(m.status.PID))
	}
	if m.update != nil {
		detail = strings.TrimSpace(detail + " · update " + m.update.Version)
	}
	room := m.width - lipgloss.Width(title) - lipgloss.Width(badge) - 1
	if detail != "" && room > 0 {
		detail = " " + styles.HeaderDetailStyle.Render(styles.TruncateString(detail, room))
	} else {
		detail = ""
	}
	return title + badge + detail
}

func (m Model) footer() string {
	if m.statusText != "" {
		return styles.StatusBarStyle.Render(styles.TruncateString(m.statusText, max(m.width-2, 1)))
	}
	return m.help.View(m.keys)
}

func (m Model) renderLines() string {
	if len(m.lines) == 0 {
		return styles.EmptyStyle.Render("Waiting for sidecar output…")
	}
	var b strings.Builder
	for i, line := range m.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if !line.At.IsZero() {
			b.WriteString(styles.TimestampStyle.Render(line.At.Format("15:04:05")))
			b.WriteByte(' ')
		}
		if line.Stderr {
			b.WriteString(styles.StderrStyle.Render(line.Text))
		} else {
			b.WriteString(styles.StdoutStyle.Render(line.Text))
		}
	}
	return b.String()
}

// renderNotes renders the release notes of meta as markdown. Rendering
// errors fall back to the raw text.
func renderNotes(meta *updater.Metadata, width int, style string) string {
	if meta == nil || meta.Notes == "" {
		return ""
	}
	md := "# tether " + meta.Version + "\n\n" + meta.Notes
	r, err := markdown.New(max(width-4, 20), style)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Text hierarchy
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#2D3436", Dark: "#CCCCCC"} // Sidecar stdout
	TextSecondaryColor = lipgloss.AdaptiveColor{Light: "#636E72", Dark: "#BBBBBB"} // Header details
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"} // Hints, timestamps, help

	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}

	// Status
	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#C7902B", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	StatusInfoColor    = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}

	// Toast notification colors
	ToastBorderSuccessColor = StatusSuccessColor
	ToastBorderErrorColor   = StatusErrorColor
	ToastBorderInfoColor    = StatusInfoColor
	ToastBorderWarnColor    = StatusWarningColor

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextPrimaryColor).
			PaddingRight(1)

	HeaderDetailStyle = lipgloss.NewStyle().Foreground(TextSecondaryColor)

	BadgeRunningStyle = lipgloss.NewStyle().Bold(true).Foreground(StatusSuccessColor)
	BadgeStoppedStyle = lipgloss.NewStyle().Bold(true).Foreground(StatusErrorColor)
	BadgePendingStyle = lipgloss.NewStyle().Foreground(TextMutedColor)

	StdoutStyle    = lipgloss.NewStyle().Foreground(TextPrimaryColor)
	StderrStyle    = lipgloss.NewStyle().Foreground(StatusWarningColor)
	TimestampStyle = lipgloss.NewStyle().Foreground(TextMutedColor)

	// Divider between the output and the log tail
	DividerStyle = lipgloss.NewStyle().Foreground(BorderDefaultColor)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextSecondaryColor).
			Padding(0, 1)

	EmptyStyle = lipgloss.NewStyle().
			Foreground(TextMutedColor).
			Italic(true)
)

// LevelColor returns the color used for a log line containing tag
// ("[ERROR]", "[WARN]", "[INFO]" or "[DEBUG]").
func LevelColor(tag string) lipgloss.TerminalColor {
	switch tag {
	case "[ERROR]":
		return StatusErrorColor
	case "[WARN]":
		return StatusWarningColor
	case "[INFO]":
		return StatusInfoColor
	case "[DEBUG]":
		return TextMutedColor
	default:
		return TextPrimaryColor
	}
}

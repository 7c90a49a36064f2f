package styles

import (
	"fmt"

	"github.com/mattn/go-runewidth"
)

// TruncateString truncates s to fit within maxWidth cells, adding an
// ellipsis if needed. Wide runes count as two cells.
func TruncateString(s string, maxWidth int) string {
	if maxWidth < 1 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// FormatBytes renders n as a short human readable size.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

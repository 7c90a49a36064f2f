// Package markdown renders release notes for the terminal window.
package markdown

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// noMarginStyle drops the document margin so notes line up with the
// sidecar output.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

// Renderer wraps glamour with the window's configuration.
type Renderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// New creates a renderer wrapping at width. style is a glamour standard
// style name ("dark", "light"); empty means "dark".
func New(width int, style string) (*Renderer, error) {
	if style == "" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Renderer{renderer: r, width: width}, nil
}

// Width returns the configured word wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// Render transforms markdown to styled terminal output without trailing
// blank lines.
func (r *Renderer) Render(markdown string) (string, error) {
	out, err := r.renderer.Render(markdown)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

package window

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
)

// KeyMap holds the window key bindings.
type KeyMap struct {
	Quit        key.Binding
	Restart     key.Binding
	CheckUpdate key.Binding
	Install     key.Binding
	Notes       key.Binding
	Greet       key.Binding
	LogLevel    key.Binding
	Bottom      key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Restart: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "restart"),
		),
		CheckUpdate: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "check update"),
		),
		Install: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "install update"),
			key.WithDisabled(),
		),
		Notes: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "release notes"),
			key.WithDisabled(),
		),
		Greet: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "greet"),
		),
		LogLevel: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "log level"),
			key.WithDisabled(),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "follow"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Restart, k.CheckUpdate, k.Install, k.Notes, k.Greet, k.LogLevel}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Quit, k.Restart, k.Greet},
		{k.CheckUpdate, k.Install, k.Notes},
		{k.LogLevel, k.Bottom},
	}
}

// viewportKeys drops the viewport's single letter bindings that collide
// with the window's own keys.
func viewportKeys() viewport.KeyMap {
	km := viewport.DefaultKeyMap()
	km.HalfPageUp = key.NewBinding(key.WithKeys("ctrl+u"))
	km.HalfPageDown = key.NewBinding(key.WithKeys("ctrl+d"))
	km.Left = key.NewBinding(key.WithDisabled())
	km.Right = key.NewBinding(key.WithDisabled())
	return km
}

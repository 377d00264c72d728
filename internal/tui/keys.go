package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// keyMap holds the dashboard bindings
type keyMap struct {
	Quit key.Binding
}

func newKeyMap(quitKey string) keyMap {
	if quitKey == "" {
		quitKey = "q"
	}
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys(quitKey, "ctrl+c"),
			key.WithHelp(quitKey, "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

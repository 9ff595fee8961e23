package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	kind    key.Binding
	long    key.Binding
	medium  key.Binding
	short   key.Binding
	ingest  key.Binding
	refresh key.Binding
	back    key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		kind:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "artists/tracks/playlists")),
		long:    key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "all time")),
		medium:  key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "6 months")),
		short:   key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "4 weeks")),
		ingest:  key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "ingest now")),
		refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.kind, k.long, k.medium, k.short, k.ingest, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.kind},
		{k.long, k.medium, k.short},
		{k.ingest, k.refresh, k.back, k.quit},
	}
}

package ui

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgRowsLoaded MsgKind = iota
	MsgProgressUpdate
	MsgIngestComplete
)

type rowsLoaded struct {
	kind   models.Kind
	window models.Window
	items  []list.Item
	err    error
}

type ingestComplete struct {
	result *tasks.RunResult
	err    error
}

// rowsLoadedMsg is the constructor for [MsgRowsLoaded]
func rowsLoadedMsg(kind models.Kind, window models.Window, items []list.Item, err error) Msg {
	return Msg{kind: MsgRowsLoaded, data: rowsLoaded{kind, window, items, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// ingestCompleteMsg is the constructor for [MsgIngestComplete]
func ingestCompleteMsg(result *tasks.RunResult, err error) Msg {
	return Msg{kind: MsgIngestComplete, data: ingestComplete{result, err}}
}

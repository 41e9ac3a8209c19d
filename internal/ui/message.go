package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/tasks"
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
	MsgStatus MsgKind = iota
	MsgEngineEvent
	MsgEventsClosed
)

type statusData struct {
	status    tasks.Status
	pending   []models.QueuedEvent
	scheduled bool
}

// statusMsg is the constructor for [MsgStatus]. Scheduled snapshots re-arm the poll timer.
func statusMsg(status tasks.Status, pending []models.QueuedEvent, scheduled bool) Msg {
	return Msg{kind: MsgStatus, data: statusData{status: status, pending: pending, scheduled: scheduled}}
}

// engineEventMsg is the constructor for [MsgEngineEvent]
func engineEventMsg(ev tasks.Event) Msg {
	return Msg{kind: MsgEngineEvent, data: ev}
}

// eventsClosedMsg is the constructor for [MsgEventsClosed]
func eventsClosedMsg() Msg {
	return Msg{kind: MsgEventsClosed}
}

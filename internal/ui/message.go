package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/reconcile"
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
	MsgListsFetched MsgKind = iota
	MsgListCreated
	MsgListDeleted
	MsgViewOpened
	MsgViewChanged
	MsgViewEnded
	MsgActionDone
)

type listsFetched struct {
	lists []models.List
	err   error
}

type listResult struct {
	list models.List
	err  error
}

type viewOpened struct {
	view *reconcile.View
	err  error
}

type actionDone struct {
	action string
	err    error
}

// listsFetchedMsg is the constructor for [MsgListsFetched]
func listsFetchedMsg(lists []models.List, err error) Msg {
	return Msg{kind: MsgListsFetched, data: listsFetched{lists, err}}
}

// listCreatedMsg is the constructor for [MsgListCreated]
func listCreatedMsg(list models.List, err error) Msg {
	return Msg{kind: MsgListCreated, data: listResult{list, err}}
}

// listDeletedMsg is the constructor for [MsgListDeleted]
func listDeletedMsg(list models.List, err error) Msg {
	return Msg{kind: MsgListDeleted, data: listResult{list, err}}
}

// viewOpenedMsg is the constructor for [MsgViewOpened]
func viewOpenedMsg(view *reconcile.View, err error) Msg {
	return Msg{kind: MsgViewOpened, data: viewOpened{view, err}}
}

// viewChangedMsg is the constructor for [MsgViewChanged]. It carries the view that signalled so signals from a
// view that has since been closed can be told apart.
func viewChangedMsg(view *reconcile.View) Msg {
	return Msg{kind: MsgViewChanged, data: view}
}

// viewEndedMsg is the constructor for [MsgViewEnded], sent once the view's change channel is closed.
func viewEndedMsg(view *reconcile.View) Msg {
	return Msg{kind: MsgViewEnded, data: view}
}

// actionDoneMsg is the constructor for [MsgActionDone]
func actionDoneMsg(action string, err error) Msg {
	return Msg{kind: MsgActionDone, data: actionDone{action, err}}
}

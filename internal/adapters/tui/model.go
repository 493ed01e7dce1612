// Package tui implements the interactive remove/replace menu as a Bubbletea
// program over a workflow.Session.
//
// One Model holds all state; Update switches on message type and hands keys
// to a per-screen handler. Ledger calls run inside tea.Cmds so a slow daemon
// never blocks rendering.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/corey/thoughts/internal/domain/workflow"
)

// ─── Screens ─────────────────────────────────────────────────────────────────

type Screen int

const (
	ScreenMenu Screen = iota
	ScreenReplace
	ScreenExpired
)

// ─── Custom Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

type selectDoneMsg struct {
	phrase  string
	pending workflow.Pending
	err     error
}

type submitDoneMsg struct {
	from, to string
	err      error
}

// ─── Model ───────────────────────────────────────────────────────────────────

type Model struct {
	ctx     context.Context
	session *workflow.Session
	actor   string
	name    string // display name of the author being edited

	Screen Screen
	Width  int
	Height int
	Cursor int

	Input textinput.Model

	Busy      bool
	StatusMsg string
	ErrorMsg  string
	Quitting  bool
}

// New creates a menu for session, driven by actor.
func New(ctx context.Context, session *workflow.Session, actor, displayName string) Model {
	ti := textinput.New()
	ti.Placeholder = "Enter new thought here"
	ti.CharLimit = 200
	ti.Width = 48

	return Model{
		ctx:     ctx,
		session: session,
		actor:   actor,
		name:    displayName,
		Screen:  ScreenMenu,
		Input:   ti,
	}
}

// Init starts the expiry ticker.
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run drives the menu on the terminal until the user quits or the session
// expires.
func Run(ctx context.Context, session *workflow.Session, actor, displayName string) error {
	p := tea.NewProgram(New(ctx, session, actor, displayName), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/corey/thoughts/internal/domain/workflow"
)

// ─── Update ──────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case tickMsg:
		if m.session.Expired() {
			return m.expire()
		}
		return m, tick()

	case tea.KeyMsg:
		// ctrl+c quits from any screen
		if msg.String() == "ctrl+c" {
			m.Quitting = true
			return m, tea.Quit
		}
		if m.Busy || m.Screen == ScreenExpired {
			return m, nil
		}
		if m.Screen == ScreenReplace {
			return m.handleReplaceKeys(msg)
		}
		return m.handleMenuKeys(msg.String())

	case selectDoneMsg:
		m.Busy = false
		if msg.err != nil {
			return m.fail(msg.err)
		}
		if msg.pending == workflow.PendingRename {
			m.Screen = ScreenReplace
			m.Input.SetValue("")
			m.Input.Focus()
			return m, nil
		}
		m.StatusMsg = fmt.Sprintf("Removed one occurrence of %s from %s's thoughts.", msg.phrase, m.name)
		return m, nil

	case submitDoneMsg:
		m.Busy = false
		if errors.Is(msg.err, workflow.ErrEmptyReplacement) {
			m.ErrorMsg = msg.err.Error()
			return m, nil
		}
		m.Screen = ScreenMenu
		m.Input.Blur()
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.StatusMsg = fmt.Sprintf("Replaced %s → %s for %s.", msg.from, msg.to, m.name)
		return m, nil
	}

	if m.Screen == ScreenReplace {
		var cmd tea.Cmd
		m.Input, cmd = m.Input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// fail shows err, or ends the program if the session is gone.
func (m Model) fail(err error) (tea.Model, tea.Cmd) {
	if errors.Is(err, workflow.ErrSessionExpired) {
		return m.expire()
	}
	m.StatusMsg = ""
	m.ErrorMsg = err.Error()
	return m, nil
}

func (m Model) expire() (tea.Model, tea.Cmd) {
	m.Screen = ScreenExpired
	m.Input.Blur()
	m.Quitting = true
	return m, tea.Quit
}

// ─── Menu keys ───────────────────────────────────────────────────────────────

func (m Model) handleMenuKeys(key string) (tea.Model, tea.Cmd) {
	m.ErrorMsg = ""
	switch key {
	case "q", "esc":
		m.Quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
		return m, nil

	case "down", "j":
		if m.Cursor < len(m.session.Page().Entries)-1 {
			m.Cursor++
		}
		return m, nil

	case "right", "l", "n":
		moved, err := m.session.Advance(m.actor)
		if err != nil {
			return m.fail(err)
		}
		if moved {
			m.Cursor = 0
		}
		return m, nil

	case "left", "h", "p":
		moved, err := m.session.Retreat(m.actor)
		if err != nil {
			return m.fail(err)
		}
		if moved {
			m.Cursor = 0
		}
		return m, nil

	case "enter":
		entries := m.session.Page().Entries
		if len(entries) == 0 {
			return m, nil
		}
		phrase := entries[m.Cursor].Phrase
		m.Busy = true
		m.StatusMsg = ""
		return m, m.selectCmd(phrase)
	}
	return m, nil
}

func (m Model) selectCmd(phrase string) tea.Cmd {
	ctx, s, actor := m.ctx, m.session, m.actor
	return func() tea.Msg {
		pending, err := s.Select(ctx, actor, phrase)
		return selectDoneMsg{phrase: phrase, pending: pending, err: err}
	}
}

// ─── Replace keys ────────────────────────────────────────────────────────────

func (m Model) handleReplaceKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.Screen = ScreenMenu
		m.Input.Blur()
		if err := m.session.Cancel(m.actor); err != nil {
			return m.fail(err)
		}
		return m, nil

	case "enter":
		from, _ := m.session.PendingPhrase()
		to := strings.TrimSpace(m.Input.Value())
		m.Busy = true
		ctx, s, actor := m.ctx, m.session, m.actor
		return m, func() tea.Msg {
			err := s.Submit(ctx, actor, to)
			return submitDoneMsg{from: from, to: to, err: err}
		}
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

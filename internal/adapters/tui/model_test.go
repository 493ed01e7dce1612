package tui

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/corey/thoughts/internal/domain/workflow"
	"github.com/corey/thoughts/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op, from, to string
}

type recordingMutator struct {
	mu    sync.Mutex
	calls []call
	gone  map[string]bool
}

func (r *recordingMutator) RemoveOne(_ context.Context, _ ports.AuthorID, phrase string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{op: "remove", from: phrase})
	return !r.gone[phrase], nil
}

func (r *recordingMutator) Rename(_ context.Context, _ ports.AuthorID, oldPhrase, newPhrase string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{op: "rename", from: oldPhrase, to: newPhrase})
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

// newModel builds a menu over n phrases p00..p(n-1) with descending counts.
func newModel(t *testing.T, action workflow.Action, n int) (Model, *recordingMutator, *clock) {
	t.Helper()
	tm := ports.NewThoughtMap()
	for i := range n {
		tm.Add(fmt.Sprintf("p%02d", i), n-i)
	}
	mut := &recordingMutator{}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	s := workflow.New(workflow.Config{
		Owner:    "alice",
		Author:   "42",
		Action:   action,
		Snapshot: tm,
		Mutator:  mut,
		Now:      clk.now,
	})
	return New(context.Background(), s, "alice", "Bob"), mut, clk
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends keys in order and returns the final model and last command.
func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(key(k))
		m = next.(Model)
	}
	return m, cmd
}

// finish runs cmd synchronously and feeds its message back in.
func finish(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	return next.(Model)
}

func TestMenu_CursorAndPaging(t *testing.T) {
	m, _, _ := newModel(t, workflow.ActionRemove, 40)

	m, _ = press(t, m, "down", "j", "k")
	assert.Equal(t, 1, m.Cursor)
	m, _ = press(t, m, "up", "up")
	assert.Equal(t, 0, m.Cursor, "cursor stops at the top")

	m, _ = press(t, m, "down", "right")
	assert.Equal(t, 0, m.Cursor, "paging resets the cursor")
	page := m.session.Page()
	assert.Equal(t, 2, page.Number)
	assert.Len(t, page.Entries, 15)
	assert.Contains(t, m.View(), "page 2/2")

	m, _ = press(t, m, "l")
	assert.Equal(t, 2, m.session.Page().Number, "no page past the last")

	for range 20 {
		m, _ = press(t, m, "down")
	}
	assert.Equal(t, 14, m.Cursor, "cursor stops at the last entry")

	m, _ = press(t, m, "h")
	assert.Equal(t, 1, m.session.Page().Number)
}

func TestMenu_Remove(t *testing.T) {
	m, mut, _ := newModel(t, workflow.ActionRemove, 3)

	m, cmd := press(t, m, "down", "enter")
	assert.True(t, m.Busy)

	// Keys are ignored while the mutation runs.
	m, _ = press(t, m, "down")
	assert.Equal(t, 1, m.Cursor)

	m = finish(t, m, cmd)
	assert.False(t, m.Busy)
	assert.Equal(t, "Removed one occurrence of p01 from Bob's thoughts.", m.StatusMsg)
	assert.Equal(t, []call{{op: "remove", from: "p01"}}, mut.calls)
	assert.Equal(t, ScreenMenu, m.Screen)
}

func TestMenu_RemoveOfGonePhrase(t *testing.T) {
	m, mut, _ := newModel(t, workflow.ActionRemove, 2)
	mut.gone = map[string]bool{"p00": true}

	m, cmd := press(t, m, "enter")
	m = finish(t, m, cmd)
	assert.Empty(t, m.StatusMsg)
	assert.Contains(t, m.ErrorMsg, workflow.ErrAlreadyRemoved.Error())
	assert.Equal(t, ScreenMenu, m.Screen)
}

func TestMenu_Replace(t *testing.T) {
	m, mut, _ := newModel(t, workflow.ActionReplace, 3)

	m, cmd := press(t, m, "enter")
	m = finish(t, m, cmd)
	require.Equal(t, ScreenReplace, m.Screen)
	assert.Contains(t, m.View(), "Replace 'p00' with:")

	// Typing "q" edits the input instead of quitting.
	m, _ = press(t, m, "q", "u", "o", "l", "l")
	assert.Equal(t, "quoll", m.Input.Value())

	m, cmd = press(t, m, "enter")
	m = finish(t, m, cmd)
	assert.Equal(t, ScreenMenu, m.Screen)
	assert.Equal(t, "Replaced p00 → quoll for Bob.", m.StatusMsg)
	assert.Equal(t, []call{{op: "rename", from: "p00", to: "quoll"}}, mut.calls)
}

func TestMenu_ReplaceEmptyKeepsPrompt(t *testing.T) {
	m, mut, _ := newModel(t, workflow.ActionReplace, 2)

	m, cmd := press(t, m, "enter")
	m = finish(t, m, cmd)
	m, cmd = press(t, m, " ", "enter")
	m = finish(t, m, cmd)

	assert.Equal(t, ScreenReplace, m.Screen)
	assert.Equal(t, workflow.ErrEmptyReplacement.Error(), m.ErrorMsg)
	assert.Empty(t, mut.calls)
}

func TestMenu_ReplaceCancel(t *testing.T) {
	m, mut, _ := newModel(t, workflow.ActionReplace, 2)

	m, cmd := press(t, m, "enter")
	m = finish(t, m, cmd)
	m, _ = press(t, m, "x", "esc")

	assert.Equal(t, ScreenMenu, m.Screen)
	_, pending := m.session.PendingPhrase()
	assert.False(t, pending)
	assert.Empty(t, mut.calls)
}

func TestMenu_ExpiresOnTick(t *testing.T) {
	m, _, clk := newModel(t, workflow.ActionRemove, 2)

	next, cmd := m.Update(tickMsg(clk.t))
	m = next.(Model)
	assert.Equal(t, ScreenMenu, m.Screen)
	require.NotNil(t, cmd, "ticker re-armed")

	clk.t = clk.t.Add(workflow.DefaultTimeout)
	next, cmd = m.Update(tickMsg(clk.t))
	m = next.(Model)
	assert.Equal(t, ScreenExpired, m.Screen)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "expired")
}

func TestMenu_ExpiredSessionRejectsKeys(t *testing.T) {
	m, mut, clk := newModel(t, workflow.ActionRemove, 2)
	clk.t = clk.t.Add(2 * workflow.DefaultTimeout)

	m, cmd := press(t, m, "right")
	assert.Equal(t, ScreenExpired, m.Screen)
	assert.Equal(t, tea.QuitMsg{}, cmd())

	m, cmd = press(t, m, "enter")
	assert.Nil(t, cmd)
	assert.Empty(t, mut.calls)
}

func TestMenu_EmptySnapshot(t *testing.T) {
	m, _, _ := newModel(t, workflow.ActionRemove, 0)

	assert.Contains(t, m.View(), "No thoughts found for Bob")
	m, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
	assert.False(t, m.Busy)
}

func TestMenu_Quit(t *testing.T) {
	m, _, _ := newModel(t, workflow.ActionRemove, 2)

	m, cmd := press(t, m, "q")
	assert.True(t, m.Quitting)
	assert.Equal(t, tea.QuitMsg{}, cmd())

	m, _, _ = newModel(t, workflow.ActionReplace, 2)
	m, cmd = press(t, m, "enter")
	m = finish(t, m, cmd)
	_, cmd = press(t, m, "ctrl+c")
	assert.Equal(t, tea.QuitMsg{}, cmd(), "ctrl+c quits even while typing")
}

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/corey/thoughts/internal/domain/workflow"
)

// ─── View ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.Screen == ScreenExpired {
		return appStyle.Render(errorStyle.Render("This menu has expired.")) + "\n"
	}
	if m.Quitting {
		return ""
	}

	var b strings.Builder
	switch m.Screen {
	case ScreenReplace:
		b.WriteString(m.viewReplace())
	default:
		b.WriteString(m.viewMenu())
	}

	if m.StatusMsg != "" {
		b.WriteString("\n" + statusStyle.Render(m.StatusMsg))
	}
	if m.ErrorMsg != "" {
		b.WriteString("\n" + errorStyle.Render(m.ErrorMsg))
	}
	return appStyle.Render(b.String())
}

func (m Model) viewMenu() string {
	var b strings.Builder

	if m.session.Empty() {
		b.WriteString(headerStyle.Render(fmt.Sprintf("No thoughts found for %s", m.name)))
		b.WriteString("\n" + helpStyle.Render("q quit"))
		return b.String()
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("Select a thought from %s to %s", m.name, m.session.Action)))
	b.WriteString("\n")

	page := m.session.Page()
	for i, e := range page.Entries {
		count := countStyle.Render(fmt.Sprintf("%d obs.", e.Count))
		if i == m.Cursor {
			b.WriteString(selectedItemStyle.Render("▸ "+e.Phrase) + "  " + count + "\n")
		} else {
			b.WriteString(itemStyle.Render(e.Phrase) + "  " + count + "\n")
		}
	}

	b.WriteString(pagerStyle.Render(pager(page)))
	b.WriteString("\n" + helpStyle.Render(fmt.Sprintf(
		"↑/↓ move • ←/→ page • enter %s • q quit • expires in %s",
		m.session.Action, m.remaining())))
	return b.String()
}

func pager(p workflow.Page) string {
	prev, next := "← Previous", "Next →"
	if !p.HasPrev {
		prev = disabledStyle.Render(prev)
	}
	if !p.HasNext {
		next = disabledStyle.Render(next)
	}
	return fmt.Sprintf("%s  page %d/%d  %s", prev, p.Number, p.Count, next)
}

func (m Model) viewReplace() string {
	var b strings.Builder
	from, _ := m.session.PendingPhrase()
	b.WriteString(headerStyle.Render("Replace a thought"))
	b.WriteString("\n")
	b.WriteString(promptStyle.Render(fmt.Sprintf("Replace '%s' with:", from)))
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	b.WriteString("\n" + helpStyle.Render("enter submit • esc cancel"))
	return b.String()
}

func (m Model) remaining() time.Duration {
	d := time.Until(m.session.Deadline()).Round(time.Second)
	if d < 0 {
		return 0
	}
	return d
}

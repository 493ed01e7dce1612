// Package chart renders ledger summaries as horizontal bar charts with
// lipgloss and publishes them as text files.
package chart

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/corey/thoughts/internal/domain/ledger"
	"github.com/corey/thoughts/internal/ports"
)

// AllName is the artifact base name of the combined chart.
const AllName = "all"

const (
	maxBar   = 40
	maxLabel = 32
)

var barColors = []lipgloss.Color{
	"#9ccfd8", "#c4a7e7", "#f6c177", "#eb6f92", "#31748f", "#ebbcba",
}

// Chart implements ports.Renderer.
type Chart struct {
	dir string
	r   *lipgloss.Renderer

	title lipgloss.Style
	label lipgloss.Style
	count lipgloss.Style
	rule  lipgloss.Style
}

// New returns a chart that writes artifacts under dir. Output written to w
// decides the color profile; pass nil for plain text files.
func New(dir string, w io.Writer) *Chart {
	if w == nil {
		w = io.Discard
	}
	r := lipgloss.NewRenderer(w)
	return &Chart{
		dir:   dir,
		r:     r,
		title: r.NewStyle().Bold(true),
		label: r.NewStyle(),
		count: r.NewStyle().Faint(true),
		rule:  r.NewStyle().Faint(true),
	}
}

// Dir returns the publish directory.
func (c *Chart) Dir() string {
	return c.dir
}

// AuthorTitle is the heading of a single author's chart.
func AuthorTitle(displayName string) string {
	return fmt.Sprintf("Things %s sometimes thinks about", displayName)
}

// AllTitle is the heading of the combined chart.
const AllTitle = "Things people sometimes think about"

// DisplayName returns the configured name for id, or a placeholder.
func DisplayName(names map[ports.AuthorID]string, id ports.AuthorID) string {
	if n := strings.TrimSpace(names[id]); n != "" {
		return n
	}
	return fmt.Sprintf("User %s", id)
}

type bar struct {
	label string
	who   int // index into the legend, -1 for none
	count int
}

// RenderAuthor draws one author's entries, highest count first.
func (c *Chart) RenderAuthor(id ports.AuthorID, displayName string, tm *ports.ThoughtMap) (ports.Artifact, error) {
	if tm.Len() == 0 {
		return ports.Artifact{}, ports.ErrNoData
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = DisplayName(nil, id)
	}
	entries := ledger.Sorted(tm)
	bars := make([]bar, len(entries))
	for i, e := range entries {
		bars[i] = bar{label: e.Phrase, who: -1, count: e.Count}
	}
	title := AuthorTitle(displayName)
	body := c.draw(title, bars, nil)
	return c.publish(string(id), title, body)
}

// RenderAll draws every author's entries in one chart. Each bar is labelled
// with its author; authors missing from names get a placeholder.
func (c *Chart) RenderAll(names map[ports.AuthorID]string, l ports.Ledger) (ports.Artifact, error) {
	var bars []bar
	var legend []string
	for _, id := range l.Authors() {
		tm := l.Get(id)
		if tm.Len() == 0 {
			continue
		}
		who := len(legend)
		legend = append(legend, DisplayName(names, id))
		for _, e := range tm.Entries() {
			bars = append(bars, bar{label: e.Phrase, who: who, count: e.Count})
		}
	}
	if len(bars) == 0 {
		return ports.Artifact{}, ports.ErrNoData
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].count > bars[j].count })
	body := c.draw(AllTitle, bars, legend)
	return c.publish(AllName, AllTitle, body)
}

func (c *Chart) draw(title string, bars []bar, legend []string) string {
	top := 0
	for _, b := range bars {
		top = max(top, b.count)
	}

	labels := make([]string, len(bars))
	labelWidth := 0
	for i, b := range bars {
		l := truncate(b.label, maxLabel)
		if b.who >= 0 {
			l = fmt.Sprintf("%s (%s)", l, truncate(legend[b.who], 16))
		}
		labels[i] = l
		labelWidth = max(labelWidth, lipgloss.Width(l))
	}

	var sb strings.Builder
	sb.WriteString(c.title.Render(title))
	sb.WriteByte('\n')
	sb.WriteString(c.rule.Render(strings.Repeat("─", max(lipgloss.Width(title), labelWidth+maxBar+6))))
	sb.WriteByte('\n')

	labelStyle := c.label.Width(labelWidth).Align(lipgloss.Right)
	for i, b := range bars {
		n := b.count * maxBar / top
		if n < 1 {
			n = 1
		}
		color := barColors[0]
		if b.who >= 0 {
			color = barColors[b.who%len(barColors)]
		}
		sb.WriteString(labelStyle.Render(labels[i]))
		sb.WriteString(" │")
		sb.WriteString(c.r.NewStyle().Foreground(color).Render(strings.Repeat("█", n)))
		sb.WriteByte(' ')
		sb.WriteString(c.count.Render(fmt.Sprint(b.count)))
		sb.WriteByte('\n')
	}
	if len(legend) > 1 {
		sb.WriteByte('\n')
		sb.WriteString(c.count.Render("User: " + strings.Join(legend, ", ")))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (c *Chart) publish(name, title, body string) (ports.Artifact, error) {
	art := ports.Artifact{Title: title, Body: body}
	if c.dir == "" {
		return art, nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return ports.Artifact{}, fmt.Errorf("publish dir: %w", err)
	}
	art.Path = filepath.Join(c.dir, name+".txt")
	// Concurrent renders of one chart each get their own temp file.
	f, err := os.CreateTemp(c.dir, name+"-*.tmp")
	if err != nil {
		return ports.Artifact{}, fmt.Errorf("write chart: %w", err)
	}
	tmp := f.Name()
	_, err = f.WriteString(body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0o644)
	}
	if err != nil {
		os.Remove(tmp)
		return ports.Artifact{}, fmt.Errorf("write chart: %w", err)
	}
	if err := os.Rename(tmp, art.Path); err != nil {
		os.Remove(tmp)
		return ports.Artifact{}, fmt.Errorf("publish chart: %w", err)
	}
	return art, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

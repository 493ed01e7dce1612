package tui

import "github.com/charmbracelet/lipgloss"

// ─── Colors ──────────────────────────────────────────────────────────────────

var (
	colorText    = lipgloss.Color("#e0def4")
	colorSubtext = lipgloss.Color("#908caa")
	colorOverlay = lipgloss.Color("#6e6a86")
	colorAccent  = lipgloss.Color("#c4a7e7")
	colorGreen   = lipgloss.Color("#9ccfd8")
	colorPeach   = lipgloss.Color("#f6c177")
	colorRed     = lipgloss.Color("#eb6f92")
)

// ─── Styles ──────────────────────────────────────────────────────────────────

var (
	appStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorOverlay).
			MarginBottom(1)

	itemStyle = lipgloss.NewStyle().
			Foreground(colorText).
			PaddingLeft(2)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(colorAccent).
				Bold(true).
				PaddingLeft(0)

	countStyle = lipgloss.NewStyle().
			Foreground(colorSubtext)

	pagerStyle = lipgloss.NewStyle().
			Foreground(colorSubtext).
			MarginTop(1)

	disabledStyle = lipgloss.NewStyle().
			Foreground(colorOverlay)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true).
			MarginTop(1)

	promptStyle = lipgloss.NewStyle().
			Foreground(colorPeach).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorSubtext).
			MarginTop(1)
)

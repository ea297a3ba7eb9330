package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent    = lipgloss.Color("#C74D4D")
	gold      = lipgloss.Color("#D4A574")
	mutedGray = lipgloss.Color("#A0AEC0")
	textColor = lipgloss.Color("#E2E8F0")
	success   = lipgloss.Color("#10B981")
	failure   = lipgloss.Color("#EF4444")
)

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1).
			Width(44)

	titleStyle = lipgloss.NewStyle().
			Foreground(gold).
			Bold(true)

	messageStyle = lipgloss.NewStyle().
			Foreground(textColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	focusedLabelStyle = lipgloss.NewStyle().
				Foreground(accent).
				Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Italic(true)

	toastBase = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 2)
)

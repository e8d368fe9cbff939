package cli

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	burnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99"))

	statusStyles = map[string]lipgloss.Style{
		"active":            lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"expiring-soon":     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"max-views-reached": lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		"expired":           lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

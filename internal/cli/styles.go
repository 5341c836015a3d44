package cli

import "github.com/charmbracelet/lipgloss"

var (
	successColor = lipgloss.Color("76")  // Green
	warningColor = lipgloss.Color("214") // Orange
	errorColor   = lipgloss.Color("196") // Red
	mutedColor   = lipgloss.Color("241") // Gray

	successStyle = lipgloss.NewStyle().Bold(true).Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(errorColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

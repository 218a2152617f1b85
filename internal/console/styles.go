package console

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the console.
var (
	colorRed    = lipgloss.Color("#FF5555")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorGray   = lipgloss.Color("#6272A4")
	colorWhite  = lipgloss.Color("#F8F8F2")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	micOpenStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	micProcessingStyle = lipgloss.NewStyle().
				Foreground(colorYellow).
				Bold(true)

	micClosedStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	recordingStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	userStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	patientStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	resultsSuccessStyle = panelStyle.
				BorderForeground(colorGreen)

	resultsFailureStyle = panelStyle.
				BorderForeground(colorRed)
)

// stressStyle colours the stress bar: green when calm, red near abandonment.
func stressStyle(level int) lipgloss.Style {
	switch {
	case level <= 3:
		return lipgloss.NewStyle().Foreground(colorGreen)
	case level <= 6:
		return lipgloss.NewStyle().Foreground(colorYellow)
	default:
		return lipgloss.NewStyle().Foreground(colorRed)
	}
}

package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/amonks/timekeep/tracking"
)

var (
	labelStyle   = lipgloss.NewStyle().Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
)

// StatusLine renders the local timer state on one line.
func StatusLine(st tracking.State) string {
	if !st.Running {
		return mutedStyle.Render("idle")
	}
	return fmt.Sprintf("%s %s %s  %s",
		runningStyle.Render("running"),
		labelStyle.Render(string(st.SubjectType)),
		st.SubjectID,
		FormatElapsed(st.Elapsed()),
	)
}

// Warning renders a message the user should not miss.
func Warning(message string) string {
	return warningStyle.Render("warning:") + " " + message
}

// Muted renders secondary text.
func Muted(message string) string {
	return mutedStyle.Render(message)
}

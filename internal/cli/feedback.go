package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/mesh-intelligence/caretrack/internal/syncqueue"
)

var (
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleFail    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleHeading = lipgloss.NewStyle().Bold(true).Underline(true)
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// terminalFeedback renders drain outcome signals as a styled status line.
type terminalFeedback struct {
	w io.Writer
}

func newTerminalFeedback(w io.Writer) *terminalFeedback {
	return &terminalFeedback{w: w}
}

// Notify implements syncqueue.Feedback.
func (f *terminalFeedback) Notify(p syncqueue.Pattern) {
	switch p {
	case syncqueue.PatternSuccess:
		fmt.Fprintln(f.w, styleOK.Render("✓ synced"))
	case syncqueue.PatternFailure:
		fmt.Fprintln(f.w, styleFail.Render("✗ sync failed"))
	}
}

// signed formats v with an explicit sign.
func signed(v float64) string {
	s := fmt.Sprintf("%+.1f", v)
	switch {
	case v > 0:
		return styleOK.Render(s)
	case v < 0:
		return styleFail.Render(s)
	}
	return s
}

package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// isTerminal reports whether w is an interactive terminal. Styling is only
// applied there so piped output stays plain.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// styler renders text for one output stream.
type styler struct {
	enabled bool
}

func newStyler(w io.Writer) styler {
	return styler{enabled: isTerminal(w)}
}

func (s styler) header(text string) string {
	if !s.enabled {
		return text
	}
	return headerStyle.Render(text)
}

func (s styler) status(status domain.TaskStatus) string {
	text := string(status)
	if !s.enabled {
		return text
	}
	switch status {
	case domain.TaskPending:
		return pendingStyle.Render(text)
	case domain.TaskRunning:
		return runningStyle.Render(text)
	case domain.TaskDone:
		return doneStyle.Render(text)
	case domain.TaskFailed:
		return failedStyle.Render(text)
	default:
		return text
	}
}

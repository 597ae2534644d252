package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/vigil-sh/vigil/internal/tui/theme"
)

// StepStatus is the outcome of one step.
type StepStatus int

const (
	StepRunning StepStatus = iota
	StepSuccess
	StepFailed
	StepSkipped
)

// Steps prints step-oriented progress for long operations such as a
// relaunch (spawn, await window, inject context). Output is suppressed
// when the writer is not a terminal.
type Steps struct {
	w       io.Writer
	visible bool
	current string
}

// NewSteps creates a step printer on w.
func NewSteps(w io.Writer) *Steps {
	visible := true
	if f, ok := w.(*os.File); ok {
		visible = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Steps{w: w, visible: visible}
}

// Start begins a named step.
func (s *Steps) Start(name string) {
	s.current = name
	if s.visible {
		fmt.Fprintf(s.w, "  %s %s...\n", s.mark(StepRunning), name)
	}
}

// Done finishes the current step with the given status and optional detail.
func (s *Steps) Done(status StepStatus, detail string) {
	if !s.visible {
		return
	}
	line := fmt.Sprintf("  %s %s", s.mark(status), s.current)
	if detail != "" {
		line += " (" + detail + ")"
	}
	fmt.Fprintln(s.w, line)
}

func (s *Steps) mark(status StepStatus) string {
	plain := map[StepStatus]string{
		StepRunning: "→",
		StepSuccess: "✓",
		StepFailed:  "✗",
		StepSkipped: "-",
	}[status]

	if os.Getenv("NO_COLOR") != "" {
		return plain
	}
	t := theme.Current()
	switch status {
	case StepSuccess:
		return lipgloss.NewStyle().Foreground(t.Success).Render(plain)
	case StepFailed:
		return lipgloss.NewStyle().Foreground(t.Error).Render(plain)
	case StepSkipped:
		return lipgloss.NewStyle().Foreground(t.Overlay).Render(plain)
	default:
		return lipgloss.NewStyle().Foreground(t.Info).Render(plain)
	}
}

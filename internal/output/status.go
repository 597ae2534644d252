package output

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/vigil-sh/vigil/internal/session"
	"github.com/vigil-sh/vigil/internal/tui/theme"
	"github.com/vigil-sh/vigil/internal/util"
)

// RenderStatusTable writes one row per monitored interface.
func RenderStatusTable(w io.Writer, snaps []session.Snapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, "No monitored interfaces.")
		return
	}

	table := NewTable(w, "INTERFACE", "STATE", "CONFIDENCE", "SAMPLES", "LAST SAMPLE", "STATUS")
	for _, s := range snaps {
		last := "never"
		if !s.LastSampleAt.IsZero() {
			last = util.FormatDuration(time.Since(s.LastSampleAt)) + " ago"
		}
		table.AddRow(
			s.Interface,
			styledState(string(s.CurrentState)),
			fmt.Sprintf("%.2f", s.LastResult.Confidence),
			fmt.Sprintf("%d", s.Samples),
			last,
			string(s.Status),
		)
	}
	table.Render()
}

// RenderStatusDetail writes the full picture for one interface, including
// recent history and the evidence behind the last reading.
func RenderStatusDetail(w io.Writer, s session.Snapshot, width int) {
	if width <= 0 {
		width = 80
	}

	fmt.Fprintf(w, "%s  %s\n", s.Interface, styledState(string(s.CurrentState)))
	fmt.Fprintf(w, "  status:       %s\n", s.Status)
	fmt.Fprintf(w, "  confidence:   %.2f (%s)\n", s.LastResult.Confidence, s.LastResult.Provider)
	if !s.StateChangedAt.IsZero() {
		fmt.Fprintf(w, "  in state for: %s\n", util.FormatDuration(time.Since(s.StateChangedAt)))
	}
	fmt.Fprintf(w, "  samples:      %d\n", s.Samples)

	if len(s.LastResult.Evidence) > 0 {
		fmt.Fprintln(w, "  evidence:")
		for _, ev := range s.LastResult.Evidence {
			for _, line := range splitWrapped(ev, width-6) {
				fmt.Fprintf(w, "    - %s\n", line)
			}
		}
	}

	if n := len(s.History); n > 0 {
		fmt.Fprintln(w, "  recent readings:")
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, h := range s.History[start:] {
			marker := " "
			if h.Committed {
				marker = "*"
			}
			fmt.Fprintf(w, "    %s %-12s %.2f  %s\n", marker, h.State, h.Confidence,
				h.Timestamp.Local().Format("15:04:05"))
		}
	}
}

func splitWrapped(s string, width int) []string {
	if width < 20 {
		width = 20
	}
	wrapped := wordwrap.String(s, width)
	var out []string
	start := 0
	for i := 0; i <= len(wrapped); i++ {
		if i == len(wrapped) || wrapped[i] == '\n' {
			out = append(out, wrapped[start:i])
			start = i + 1
		}
	}
	return out
}

func styledState(st string) string {
	label := st
	if !IsTerminal() || !theme.HasColor() {
		return label
	}
	return lipgloss.NewStyle().Foreground(theme.StateColor(st)).Render(label)
}

// Package tui implements the live watch dashboard. It reads monitor
// heartbeats off disk on a timer, so it works whether the monitors run in
// this process or another one.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vigil-sh/vigil/internal/monitor"
	"github.com/vigil-sh/vigil/internal/session"
	"github.com/vigil-sh/vigil/internal/tui/theme"
	"github.com/vigil-sh/vigil/internal/util"
)

const refreshEvery = 2 * time.Second

type tickMsg time.Time

type snapshotsMsg struct {
	snaps []session.Snapshot
	err   error
}

// Model is the watch dashboard.
type Model struct {
	heartbeatDir string
	snaps        []session.Snapshot
	err          error
	spinner      spinner.Model
	width        int
	lastRefresh  time.Time
}

// NewModel builds the dashboard model.
func NewModel(heartbeatDir string) Model {
	t := theme.Current()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(t.Primary)
	return Model{heartbeatDir: heartbeatDir, spinner: sp, width: 80}
}

// Init starts the spinner and the refresh timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) load() tea.Msg {
	snaps, err := monitor.ReadHeartbeats(m.heartbeatDir)
	return snapshotsMsg{snaps: snaps, err: err}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.load
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		return m, tea.Batch(m.load, tick())
	case snapshotsMsg:
		m.snaps = msg.snaps
		m.err = msg.err
		m.lastRefresh = time.Now()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	t := theme.Current()
	title := lipgloss.NewStyle().Foreground(t.Primary).Bold(true)
	dim := lipgloss.NewStyle().Foreground(t.Overlay)

	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(title.Render("vigil watch"))
	if !m.lastRefresh.IsZero() {
		b.WriteString(dim.Render(fmt.Sprintf("  refreshed %s ago",
			util.FormatDuration(time.Since(m.lastRefresh).Round(time.Second)))))
	}
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(lipgloss.NewStyle().Foreground(t.Error).Render("error: " + m.err.Error()))
		b.WriteString("\n")
	case len(m.snaps) == 0:
		b.WriteString(dim.Render("no monitor heartbeats yet"))
		b.WriteString("\n")
	default:
		b.WriteString(m.renderSessions())
	}

	b.WriteString("\n")
	b.WriteString(dim.Render("q quit · r refresh"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderSessions() string {
	t := theme.Current()
	name := lipgloss.NewStyle().Foreground(t.Text).Bold(true)
	dim := lipgloss.NewStyle().Foreground(t.Subtext)

	var b strings.Builder
	for _, s := range m.snaps {
		st := string(s.CurrentState)
		stateStyle := lipgloss.NewStyle().Foreground(theme.StateColor(st)).Bold(true)

		b.WriteString(fmt.Sprintf("  %s %s %s\n",
			s.CurrentState.Icon(),
			name.Render(fmt.Sprintf("%-16s", s.Interface)),
			stateStyle.Render(st)))

		detail := fmt.Sprintf("    conf %.2f · %d samples", s.LastResult.Confidence, s.Samples)
		if !s.LastSampleAt.IsZero() {
			detail += " · sampled " + util.FormatDuration(time.Since(s.LastSampleAt).Round(time.Second)) + " ago"
		}
		b.WriteString(dim.Render(detail))
		b.WriteString("\n")
	}
	return b.String()
}

// Run starts the dashboard and blocks until the user quits.
func Run(heartbeatDir string) error {
	p := tea.NewProgram(NewModel(heartbeatDir), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

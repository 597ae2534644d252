package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vigil-sh/vigil/internal/handler"
	"github.com/vigil-sh/vigil/internal/monitor"
	"github.com/vigil-sh/vigil/internal/output"
)

var statusDetect bool

var statusCmd = &cobra.Command{
	Use:   "status [interface]",
	Short: "Show monitor state for one or all interfaces",
	Long: `Reads the heartbeat files the monitoring loops persist each cycle, so it
works from a separate process. With --detect, probes each configured
interface to report which ones have a reachable window right now.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusDetect, "detect", false, "Probe configured interfaces for reachable windows")
}

func runStatus(cmd *cobra.Command, args []string) error {
	f := output.New(output.WithJSON(jsonOutput))

	if statusDetect {
		return runDetect(cmd.Context(), f)
	}

	snaps, err := monitor.ReadHeartbeats(cfg.Monitor.HeartbeatDir)
	if err != nil {
		return fmt.Errorf("read heartbeats: %w", err)
	}

	if len(args) == 1 {
		for _, s := range snaps {
			if s.Interface == args[0] {
				return f.Output(s, func(w io.Writer) error {
					output.RenderStatusDetail(w, s, terminalWidth())
					return nil
				})
			}
		}
		return output.NewCLIError(fmt.Sprintf("no heartbeat for %q", args[0])).
			WithHint("vigil monitor " + args[0])
	}

	return f.Output(snaps, func(w io.Writer) error {
		output.RenderStatusTable(w, snaps)
		return nil
	})
}

// detection is a probe result for one configured interface.
type detection struct {
	Interface string `json:"interface"`
	Handler   string `json:"handler"`
	Reachable bool   `json:"reachable"`
	Window    string `json:"window,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runDetect(ctx context.Context, f *output.Formatter) error {
	names := make([]string, 0, len(cfg.Interfaces))
	for name := range cfg.Interfaces {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []detection
	for _, name := range names {
		ic := cfg.Interfaces[name]
		d := detection{Interface: name, Handler: ic.Handler}

		h, err := handler.New(name, ic)
		if err != nil {
			d.Error = err.Error()
			results = append(results, d)
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		win, err := h.LocateWindow(probeCtx)
		cancel()
		if err != nil {
			d.Error = err.Error()
		} else {
			d.Reachable = true
			d.Window = win.Title
			if d.Window == "" {
				d.Window = win.ID
			}
		}
		results = append(results, d)
	}

	return f.Output(results, func(w io.Writer) error {
		table := output.NewTable(w, "INTERFACE", "HANDLER", "REACHABLE", "WINDOW")
		for _, d := range results {
			reach := "no"
			win := d.Error
			if d.Reachable {
				reach = "yes"
				win = d.Window
			}
			table.AddRow(d.Interface, d.Handler, reach, win)
		}
		table.Render()
		return nil
	})
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

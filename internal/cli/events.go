package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vigil-sh/vigil/internal/events"
	"github.com/vigil-sh/vigil/internal/output"
)

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events [interface]",
	Short: "Show recent entries from the audit log",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "Maximum entries to show (0 = all)")
}

func runEvents(cmd *cobra.Command, args []string) error {
	all, err := events.ReadAll(cfg.Events.Path)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}

	if len(args) == 1 {
		filtered := all[:0]
		for _, e := range all {
			if e.Interface == args[0] {
				filtered = append(filtered, e)
			}
		}
		all = filtered
	}
	if eventsLimit > 0 && len(all) > eventsLimit {
		all = all[len(all)-eventsLimit:]
	}

	f := output.New(output.WithJSON(jsonOutput))
	return f.Output(all, func(w io.Writer) error {
		if len(all) == 0 {
			fmt.Fprintln(w, "No events.")
			return nil
		}
		table := output.NewTable(w, "TIME", "INTERFACE", "TYPE", "DETAIL")
		for _, e := range all {
			table.AddRow(
				e.Timestamp.Local().Format("Jan 02 15:04:05"),
				e.Interface,
				string(e.Type),
				eventDetail(e),
			)
		}
		table.Render()
		return nil
	})
}

// eventDetail picks the most informative field from an event payload.
func eventDetail(e events.Event) string {
	if e.Data == nil {
		return ""
	}
	if from, ok := e.Data["from"].(string); ok {
		to, _ := e.Data["to"].(string)
		return from + " -> " + to
	}
	if action, ok := e.Data["action"].(string); ok {
		outcome, _ := e.Data["outcome"].(string)
		return action + " (" + outcome + ")"
	}
	if reason, ok := e.Data["reason"].(string); ok && reason != "" {
		return reason
	}
	if msg, ok := e.Data["error"].(string); ok {
		return msg
	}
	return ""
}

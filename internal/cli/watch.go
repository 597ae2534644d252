package cli

import (
	"github.com/spf13/cobra"

	"github.com/vigil-sh/vigil/internal/output"
	"github.com/vigil-sh/vigil/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of all monitored interfaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !output.IsTerminal() {
			return output.NewCLIError("watch requires a terminal").
				WithHint("use `vigil status --json` for machine-readable output")
		}
		return tui.Run(cfg.Monitor.HeartbeatDir)
	},
}

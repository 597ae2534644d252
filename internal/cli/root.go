// Package cli wires the vigil command tree.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/output"
)

var (
	cfgFile string
	cfg     *config.Config

	// Global JSON output flag, inherited by all subcommands.
	jsonOutput bool

	// Build information, set by goreleaser via ldflags.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Visual session monitor and recovery engine for AI agent interfaces",
	Long: `Vigil watches AI agent sessions (desktop apps, tmux panes), classifies
what they are doing from captured frames, and takes recovery actions when a
session pauses, ends, or errors out.

Quick Start:
  vigil monitor claude_code              # Watch one interface
  vigil status                           # Snapshot of all monitors
  vigil launch claude_desktop            # Start a session with context re-injection
  vigil watch                            # Live dashboard`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.Path()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/vigil/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (machine-readable)")

	rootCmd.AddCommand(
		monitorCmd,
		statusCmd,
		launchCmd,
		contextCmd,
		watchCmd,
		eventsCmd,
		versionCmd,
	)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := output.New(output.WithJSON(jsonOutput))
		return f.Output(
			map[string]string{"version": Version, "commit": Commit, "date": Date},
			func(w io.Writer) error {
				fmt.Fprintf(w, "vigil %s (%s, built %s)\n", Version, Commit, Date)
				return nil
			})
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vigil-sh/vigil/internal/contextstore"
	"github.com/vigil-sh/vigil/internal/handler"
	"github.com/vigil-sh/vigil/internal/launcher"
	"github.com/vigil-sh/vigil/internal/output"
)

var launchNoContext bool

var launchCmd = &cobra.Command{
	Use:   "launch <interface>",
	Short: "Start a session with retry, readiness wait, and context re-injection",
	Args:  cobra.ExactArgs(1),
	RunE:  runLaunch,
}

func init() {
	launchCmd.Flags().BoolVar(&launchNoContext, "no-context", false, "Skip continuation prompt injection")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	iface := args[0]
	ic, err := cfg.Interface(iface)
	if err != nil {
		return err
	}

	var store *contextstore.Store
	if !launchNoContext {
		store, err = contextstore.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("context store: %w", err)
		}
		defer store.Close()
	}

	l := launcher.New(cfg.Launcher, cfg.Interfaces, handler.New, store, nil)
	steps := output.NewSteps(os.Stdout)

	steps.Start("launching " + ic.Executable)
	rec, err := l.Launch(cmd.Context(), iface)
	if err != nil {
		steps.Done(output.StepFailed, fmt.Sprintf("%d attempts", rec.RetryCount+1))
		return outputLaunchResult(rec, err)
	}
	steps.Done(output.StepSuccess, fmt.Sprintf("pid %d", rec.PID))

	h, err := handler.New(iface, ic)
	if err != nil {
		return err
	}

	steps.Start("waiting for window")
	if err := l.AwaitReady(cmd.Context(), &rec, h); err != nil {
		steps.Done(output.StepFailed, err.Error())
		return outputLaunchResult(rec, err)
	}
	steps.Done(output.StepSuccess, "")

	if store != nil {
		steps.Start("injecting recovery context")
		c, ok := store.Get(iface)
		prompt := contextstore.ContinuationPrompt(c)
		if !ok || prompt == "" {
			steps.Done(output.StepSkipped, "no stored context")
		} else {
			win, err := h.LocateWindow(cmd.Context())
			if err == nil {
				err = h.TypeText(cmd.Context(), win, prompt)
			}
			if err != nil {
				steps.Done(output.StepFailed, err.Error())
				return outputLaunchResult(rec, err)
			}
			steps.Done(output.StepSuccess, "")
		}
	}

	return outputLaunchResult(rec, nil)
}

func outputLaunchResult(rec launcher.Record, cause error) error {
	f := output.New(output.WithJSON(jsonOutput))
	if cause != nil {
		if f.IsJSON() {
			f.JSON(rec)
		}
		return cause
	}
	return f.Output(rec, func(w io.Writer) error {
		fmt.Fprintf(w, "\n%s is %s (pid %d)\n", rec.Interface, rec.Health, rec.PID)
		fmt.Fprintf(w, "  next: vigil monitor %s\n", rec.Interface)
		return nil
	})
}

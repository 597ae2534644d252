package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/vigil-sh/vigil/internal/contextstore"
	"github.com/vigil-sh/vigil/internal/output"
)

var contextCmd = &cobra.Command{
	Use:   "context [interface]",
	Short: "Show stored recovery context",
	Long: `Displays the recovery context external tooling has written for an
interface: the operation in progress, the last completed step, and what
comes next. This is the material injected as a continuation prompt after a
relaunch.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runContext,
}

func runContext(cmd *cobra.Command, args []string) error {
	store, err := contextstore.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("context store: %w", err)
	}
	defer store.Close()

	f := output.New(output.WithJSON(jsonOutput))

	if len(args) == 0 {
		names := make([]string, 0, len(cfg.Interfaces))
		type entry struct {
			Interface string `json:"interface"`
			Operation string `json:"operation"`
		}
		var entries []entry
		for name := range cfg.Interfaces {
			names = append(names, name)
		}
		for _, name := range names {
			if c, ok := store.Get(name); ok {
				entries = append(entries, entry{Interface: name, Operation: c.Operation})
			}
		}
		return f.Output(entries, func(w io.Writer) error {
			if len(entries) == 0 {
				fmt.Fprintln(w, "No stored context.")
				return nil
			}
			table := output.NewTable(w, "INTERFACE", "OPERATION")
			for _, e := range entries {
				table.AddRow(e.Interface, e.Operation)
			}
			table.Render()
			return nil
		})
	}

	iface := args[0]
	c, ok := store.Get(iface)
	if !ok {
		return output.NewCLIError(fmt.Sprintf("no context stored for %q", iface)).
			WithHint("write " + cfg.Store.Path + "/" + iface + ".json")
	}

	return f.Output(c, func(w io.Writer) error {
		md := contextMarkdown(iface, c)
		if output.IsTerminal() {
			rendered, err := glamour.Render(md, "auto")
			if err == nil {
				fmt.Fprint(w, rendered)
				return nil
			}
		}
		fmt.Fprint(w, md)
		return nil
	})
}

// contextMarkdown renders a recovery context as markdown.
func contextMarkdown(iface string, c contextstore.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", iface)
	if c.Operation != "" {
		fmt.Fprintf(&b, "**Operation:** %s\n\n", c.Operation)
	}
	if c.LastStep != "" {
		fmt.Fprintf(&b, "**Last completed step:** %s\n\n", c.LastStep)
	}
	if len(c.NextSteps) > 0 {
		b.WriteString("## Next steps\n\n")
		for _, s := range c.NextSteps {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}
	if c.Pending != "" {
		fmt.Fprintf(&b, "## Pending message\n\n%s\n", c.Pending)
	}
	for k, v := range c.Notes {
		fmt.Fprintf(&b, "- *%s*: %s\n", k, v)
	}
	return b.String()
}

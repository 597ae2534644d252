package cli

import (
	"fmt"
	"log"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vigil-sh/vigil/internal/classify"
	"github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/contextstore"
	"github.com/vigil-sh/vigil/internal/events"
	"github.com/vigil-sh/vigil/internal/handler"
	"github.com/vigil-sh/vigil/internal/launcher"
	"github.com/vigil-sh/vigil/internal/monitor"
	"github.com/vigil-sh/vigil/internal/notify"
	"github.com/vigil-sh/vigil/internal/output"
	"github.com/vigil-sh/vigil/internal/provider"
	"github.com/vigil-sh/vigil/internal/util"
)

var (
	monitorInterval    string
	monitorThreshold   float64
	monitorAutoRecover bool
	monitorActions     []string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [interface]...",
	Short: "Run monitoring loops until interrupted",
	Long: `Starts one sampling loop per named interface (all configured interfaces
when none are given) and blocks until SIGINT/SIGTERM. Each loop captures
frames, classifies them, and dispatches recovery actions per policy.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorInterval, "interval", "", "Sampling interval (e.g. 30s, 2m); overrides config")
	monitorCmd.Flags().Float64Var(&monitorThreshold, "threshold", 0, "Confidence threshold for committing transitions; overrides config")
	monitorCmd.Flags().BoolVar(&monitorAutoRecover, "auto-recover", false, "Relaunch ended or errored sessions")
	monitorCmd.Flags().StringSliceVar(&monitorActions, "actions", nil, "Allowed recovery actions (continue,send_message,new_session)")
}

// applyMonitorFlags overlays explicit flags onto the loaded config.
func applyMonitorFlags(cmd *cobra.Command) error {
	if cmd.Flags().Changed("interval") {
		d, err := util.ParseDuration(monitorInterval)
		if err != nil {
			return output.NewCLIError("invalid --interval").WithCause(err.Error()).
				WithHint("use a duration like 30s, 2m, or 1h")
		}
		cfg.Monitor.IntervalSeconds = int(d.Seconds())
	}
	if cmd.Flags().Changed("threshold") {
		if monitorThreshold <= 0 || monitorThreshold > 1 {
			return output.NewCLIError("invalid --threshold").
				WithHint("threshold must be in (0, 1]")
		}
		cfg.Policy.ConfidenceThreshold = monitorThreshold
	}
	if cmd.Flags().Changed("auto-recover") {
		cfg.Policy.AutoRecover = monitorAutoRecover
	}
	if cmd.Flags().Changed("actions") {
		cfg.Policy.AllowedActions = monitorActions
	}
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if err := applyMonitorFlags(cmd); err != nil {
		return err
	}

	ifaces := args
	if len(ifaces) == 0 {
		for name := range cfg.Interfaces {
			ifaces = append(ifaces, name)
		}
		sort.Strings(ifaces)
	}
	if len(ifaces) == 0 {
		return output.NewCLIError("no interfaces configured").
			WithHint("add an [interfaces.<name>] section to " + config.Path())
	}

	deps, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, iface := range ifaces {
		if _, err := deps.manager.Start(ctx, iface); err != nil {
			deps.manager.StopAll()
			return fmt.Errorf("start monitor for %s: %w", iface, err)
		}
		log.Printf("[vigil] monitoring %s every %ds", iface, cfg.Monitor.IntervalSeconds)
	}

	<-ctx.Done()
	log.Printf("[vigil] shutting down")
	deps.manager.StopAll()
	return nil
}

// runtime bundles the shared collaborators built from config.
type runtime struct {
	manager *monitor.Manager
	store   *contextstore.Store
	logger  *events.Logger
}

func (r *runtime) close() {
	if r.store != nil {
		r.store.Close()
	}
	if r.logger != nil {
		r.logger.Close()
	}
}

// buildRuntime assembles providers, classifier, context store, launcher, and
// the monitor manager. A missing secondary provider degrades to single-
// provider classification; a missing primary is an error.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	primary, err := provider.New(cfg.Providers.Primary)
	if err != nil {
		return nil, output.NewCLIError("cannot build primary provider").
			WithCause(err.Error()).
			WithHint("export " + cfg.Providers.Primary.APIKeyEnv)
	}
	var secondary provider.Provider
	if cfg.Classifier.UseSecondary {
		secondary, err = provider.New(cfg.Providers.Secondary)
		if err != nil {
			log.Printf("[vigil] secondary provider unavailable: %v", err)
			secondary = nil
		}
	}
	classifier := classify.New(primary, secondary, cfg.Classifier)

	var logger *events.Logger
	if cfg.Events.Enabled {
		logger, err = events.NewLogger(config.ExpandPath(cfg.Events.Path), cfg.Events.RetentionDays)
		if err != nil {
			return nil, fmt.Errorf("event log: %w", err)
		}
	}

	store, err := contextstore.New(config.ExpandPath(cfg.Store.Path))
	if err != nil {
		if logger != nil {
			logger.Close()
		}
		return nil, fmt.Errorf("context store: %w", err)
	}

	var notifier *notify.Notifier
	if cfg.Notify.Enabled {
		notifier = notify.New(cfg.Notify)
	}

	l := launcher.New(cfg.Launcher, cfg.Interfaces, handler.New, store, logger)
	mgr := monitor.NewManager(cfg, classifier, l, store, logger, notifier)

	return &runtime{manager: mgr, store: store, logger: logger}, nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prsheet/internal/config"
	"prsheet/internal/history"
	"prsheet/internal/logging"
	"prsheet/internal/metrics"
	"prsheet/internal/notification"
	"prsheet/internal/runner"
	"prsheet/internal/structures"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "prsheet",
	Short: "Keep a Google Sheet of merged pull requests in sync",
	Long: `prsheet collects merged pull requests from GitHub and GitLab and reconciles
them into a Google Sheet, one row per work item, grouped and sorted by repository.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <user config dir>/prsheet/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// mustLoad loads and validates the config and builds the logger for it.
func mustLoad() (structures.Config, *zap.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		if errors.Is(err, config.ErrNotConfigured) {
			fatalf("%v", err)
		}
		fatalf("invalid config: %v", err)
	}
	log, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		fatalf("failed to initialize logger: %v", err)
	}
	return cfg, log
}

// openHistory opens the run history database. A failure is logged and the
// run continues without history.
func openHistory(cfg structures.Config, log *zap.Logger) *history.Store {
	path, err := config.HistoryPath(cfg)
	if err == nil {
		var store *history.Store
		if store, err = history.Open(path); err == nil {
			return store
		}
	}
	log.Warn("Run history disabled", zap.Error(err))
	return nil
}

func newRunner(ctx context.Context, cfg structures.Config, log *zap.Logger, rec metrics.Recorder, store *history.Store) (*runner.Runner, error) {
	return runner.New(ctx, cfg, runner.Deps{
		Logger:   log,
		Recorder: rec,
		History:  store,
		Notifier: notification.New(cfg.Notify.OnFailure),
	})
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

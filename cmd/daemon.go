package cmd

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prsheet/internal/config"
	"prsheet/internal/daemon"
	"prsheet/internal/metrics"
	"prsheet/internal/runner"
	"prsheet/internal/structures"
)

var metricsAddr string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync on a schedule and reload the config when it changes",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := mustLoad()
		defer func() { _ = log.Sync() }()

		ctx, stop := signalContext()
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec := metrics.NewPrometheusRecorder(reg)

		store := openHistory(cfg, log)
		if store != nil {
			defer store.Close()
		}

		addr := metricsAddr
		if addr == "" {
			addr = cfg.Metrics.Addr
		}
		path := configPath
		if path == "" {
			if p, err := config.Path(); err == nil {
				path = p
			}
		}

		d := daemon.New(cfg, func(ctx context.Context, cfg structures.Config) (*runner.Runner, error) {
			return newRunner(ctx, cfg, log, rec, store)
		}, daemon.Options{
			ConfigPath:  path,
			MetricsAddr: addr,
			Gatherer:    reg,
			Logger:      log,
		})
		if err := d.Run(ctx); err != nil {
			log.Error("Daemon stopped", zap.Error(err))
			fatalf("daemon failed: %v", err)
		}
	},
}

func init() {
	daemonCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (default: metrics.addr from config)")
	rootCmd.AddCommand(daemonCmd)
}

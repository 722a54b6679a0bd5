// Package daemon runs syncs on a schedule, reloads the config when the file
// changes and serves Prometheus metrics.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"prsheet/internal/config"
	"prsheet/internal/logging"
	"prsheet/internal/metrics"
	"prsheet/internal/runner"
	"prsheet/internal/structures"
)

// BuildFunc creates a runner for a config snapshot.
type BuildFunc func(ctx context.Context, cfg structures.Config) (*runner.Runner, error)

// Options configure a Daemon.
type Options struct {
	// ConfigPath is watched for changes when set.
	ConfigPath     string
	ReloadDebounce time.Duration
	// MetricsAddr serves /metrics and /healthz when set.
	MetricsAddr string
	Gatherer    prom.Gatherer
	Logger      *zap.Logger
	// OnRun is called after every scheduled run.
	OnRun func(runner.Outcome)
}

// Daemon schedules runs. At most one run is in flight at a time; a tick
// that comes due while a run is still applying is skipped.
type Daemon struct {
	build BuildFunc
	opts  Options
	log   *zap.Logger

	mu       sync.Mutex
	cfg      structures.Config
	runner   atomic.Pointer[runner.Runner]
	sched    gocron.Scheduler
	job      gocron.Job
	runCtx   context.Context
	runs     atomic.Int64
	interval time.Duration
}

func New(cfg structures.Config, build BuildFunc, opts Options) *Daemon {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Daemon{build: build, opts: opts, log: log, cfg: cfg}
}

// Runs reports how many scheduled runs have completed.
func (d *Daemon) Runs() int64 { return d.runs.Load() }

// Run blocks until ctx is done. The first sync starts immediately.
func (d *Daemon) Run(ctx context.Context) error {
	r, err := d.build(ctx, d.cfg)
	if err != nil {
		return err
	}
	d.runner.Store(r)

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	every := interval(d.cfg)
	job, err := sched.NewJob(gocron.DurationJob(every), gocron.NewTask(d.tick), d.jobOptions(ctx)...)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("failed to create periodic sync job: %w", err)
	}
	d.mu.Lock()
	d.sched, d.job, d.runCtx, d.interval = sched, job, ctx, every
	d.mu.Unlock()

	if d.opts.ConfigPath != "" {
		w, err := config.NewWatcher(d.opts.ConfigPath, d.log, func(cfg structures.Config) { d.reload(ctx, cfg) })
		if err != nil {
			_ = sched.Shutdown()
			return err
		}
		if d.opts.ReloadDebounce > 0 {
			w.SetDebounce(d.opts.ReloadDebounce)
		}
		if err := w.Start(ctx); err != nil {
			_ = w.Close()
			_ = sched.Shutdown()
			return err
		}
		defer func() { _ = w.Close() }()
	}

	var srv *http.Server
	if d.opts.MetricsAddr != "" {
		srv = d.serveMetrics()
	}

	d.log.Info("Starting scheduler", zap.Duration("interval", every))
	sched.Start()

	<-ctx.Done()

	d.log.Info("Stopping scheduler")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return sched.Shutdown()
}

func (d *Daemon) jobOptions(ctx context.Context) []gocron.JobOption {
	return []gocron.JobOption{
		gocron.WithName("prsheet-sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithContext(ctx),
	}
}

// tick is called by gocron for every scheduled run.
func (d *Daemon) tick(ctx context.Context) {
	r := d.runner.Load()
	out := r.Run(ctx)
	d.runs.Add(1)
	if out.Result.Failure != nil {
		d.log.Warn("Scheduled sync failed", logging.RunID(out.Result.RunID), zap.Error(out.Result.Err()))
	}
	if d.opts.OnRun != nil {
		d.opts.OnRun(out)
	}
}

// reload swaps in a runner for cfg and reschedules when the interval
// changed. A config that fails to build keeps the current runner.
func (d *Daemon) reload(ctx context.Context, cfg structures.Config) {
	r, err := d.build(ctx, cfg)
	if err != nil {
		d.log.Error("Reloaded config rejected, keeping previous runner", zap.Error(err))
		return
	}
	d.runner.Store(r)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	next := interval(cfg)
	if next == d.interval || d.job == nil {
		return
	}
	job, err := d.sched.Update(d.job.ID(), gocron.DurationJob(next), gocron.NewTask(d.tick), d.jobOptions(d.runCtx)...)
	if err != nil {
		d.log.Error("Failed to reschedule sync job", zap.Error(err))
		return
	}
	d.job = job
	d.interval = next
	d.log.Info("Rescheduled sync job", zap.Duration("interval", next))
}

// Interval is the schedule currently in effect.
func (d *Daemon) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}

// Handler serves /metrics and /healthz.
func (d *Daemon) Handler() http.Handler {
	g := d.opts.Gatherer
	if g == nil {
		g = prom.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func (d *Daemon) serveMetrics() *http.Server {
	srv := &http.Server{Addr: d.opts.MetricsAddr, Handler: d.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("Metrics server failed", zap.String("addr", d.opts.MetricsAddr), zap.Error(err))
		}
	}()
	d.log.Info("Serving metrics", zap.String("addr", d.opts.MetricsAddr))
	return srv
}

func interval(cfg structures.Config) time.Duration {
	if cfg.Schedule.Interval > 0 {
		return cfg.Schedule.Interval
	}
	return config.DefaultInterval
}

// Package runner performs one configured sync: collect merged changes from
// every source, reconcile them into the sheet, then record and report the
// outcome.
package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"prsheet/internal/blocks"
	"prsheet/internal/config"
	"prsheet/internal/history"
	"prsheet/internal/logging"
	"prsheet/internal/metrics"
	"prsheet/internal/notification"
	"prsheet/internal/retry"
	"prsheet/internal/sheets"
	"prsheet/internal/source"
	"prsheet/internal/structures"
	"prsheet/internal/syncer"
)

// Deps are the collaborators a Runner uses. Nil fields get defaults: a
// Google Sheets client, sources built from the config, no history.
type Deps struct {
	Logger   *zap.Logger
	Recorder metrics.Recorder
	History  *history.Store
	Notifier *notification.Notifier
	Sheet    syncer.Sheet
	Sources  []source.Source
	Now      func() time.Time
}

// Runner is built from one config snapshot; rebuild it after a reload.
type Runner struct {
	cfg       structures.Config
	ref       syncer.SheetRef
	sheet     syncer.Sheet
	sources   []source.Source
	driver    *syncer.Driver
	collector source.Collector
	history   *history.Store
	notifier  *notification.Notifier
	log       *zap.Logger
	now       func() time.Time
}

// checker is implemented by sheets that can confirm the target tab exists.
type checker interface {
	Check(ctx context.Context, ref syncer.SheetRef) error
}

// Outcome is everything one invocation produced.
type Outcome struct {
	Result syncer.Result
	Report source.Report
}

func New(ctx context.Context, cfg structures.Config, deps Deps) (*Runner, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	cols, err := config.Columns(cfg)
	if err != nil {
		return nil, err
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	rec := deps.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	sheet := deps.Sheet
	if sheet == nil {
		sheet, err = sheets.NewService(ctx, sheets.Config{
			CredentialsPath: cfg.Sheet.CredentialsPath,
			LastColumn:      cols.LastLetter(),
			Retry:           retry.FromConfig(cfg.Retry),
			Logger:          log,
		})
		if err != nil {
			return nil, err
		}
	}
	srcs := deps.Sources
	if srcs == nil {
		srcs, err = source.FromConfig(cfg)
		if err != nil {
			return nil, err
		}
	}

	ref := syncer.SheetRef{DocumentID: cfg.Sheet.ID, SheetName: cfg.Sheet.Name}
	r := &Runner{
		cfg:     cfg,
		ref:     ref,
		sheet:   sheet,
		sources: srcs,
		driver: syncer.NewDriver(sheet, ref, cols, syncer.Options{
			Teams:    blocks.TeamOrder(cfg.Teams),
			Strict:   cfg.Sheet.Strict,
			Logger:   log,
			Recorder: rec,
		}),
		collector: source.Collector{Limit: cfg.GitHub.Concurrency, Logger: log, Recorder: rec},
		history:   deps.History,
		notifier:  deps.Notifier,
		log:       log,
		now:       deps.Now,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.notifier == nil {
		r.notifier = notification.New(false)
	}
	return r, nil
}

// Run performs one sync. Failures are reported in the returned result, not
// as an error.
func (r *Runner) Run(ctx context.Context) Outcome {
	runID := syncer.NewRunID()
	started := time.Now()
	log := r.log.With(logging.RunID(runID))

	records, report := r.collector.Collect(ctx, r.sources, r.since())
	log.Info("Collected merged changes",
		zap.Int("records", report.Records),
		zap.Int("sources", report.Sources),
		zap.Int("failed", len(report.Failed)),
		logging.Duration(report.Elapsed))

	var res syncer.Result
	if err := report.Err(); err != nil {
		res = syncer.Fail(runID, started, err)
	} else if err := r.check(ctx); err != nil {
		res = syncer.Fail(runID, started, err)
	} else {
		res = r.driver.RunWithID(ctx, runID, source.Rows(records))
	}

	out := Outcome{Result: res, Report: report}
	r.record(ctx, log, out)
	return out
}

// Plan computes what Run would do without writing to the sheet.
func (r *Runner) Plan(ctx context.Context) (syncer.Preview, source.Report, error) {
	records, report := r.collector.Collect(ctx, r.sources, r.since())
	if err := report.Err(); err != nil {
		return syncer.Preview{}, report, err
	}
	if err := r.check(ctx); err != nil {
		return syncer.Preview{}, report, err
	}
	p, err := r.driver.Plan(ctx, source.Rows(records))
	return p, report, err
}

func (r *Runner) since() time.Time {
	lookback := r.cfg.Lookback
	if lookback <= 0 {
		lookback = config.DefaultLookback
	}
	return r.now().Add(-lookback)
}

func (r *Runner) check(ctx context.Context) error {
	c, ok := r.sheet.(checker)
	if !ok {
		return nil
	}
	return c.Check(ctx, r.ref)
}

func (r *Runner) record(ctx context.Context, log *zap.Logger, out Outcome) {
	if r.history != nil {
		if err := r.history.Record(context.WithoutCancel(ctx), history.FromResult(out.Result, out.Report)); err != nil {
			log.Warn("Failed to record run history", zap.Error(err))
		}
	}
	if err := r.notifier.RunFailed(out.Result); err != nil {
		log.Debug("Desktop notification failed", zap.Error(err))
	}
}

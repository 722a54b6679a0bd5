package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"prsheet/internal/logging"
	"prsheet/internal/metrics"
)

// DefaultConcurrency bounds parallel fetches when no limit is configured.
const DefaultConcurrency = 4

// ErrAllSourcesFailed is returned by Report.Err when no source succeeded.
var ErrAllSourcesFailed = errors.New("all record sources failed")

// Source yields the changes merged since a point in time.
type Source interface {
	Name() string
	Fetch(ctx context.Context, since time.Time) ([]Record, error)
}

// SourceError is a failed fetch.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string { return e.Source + ": " + e.Err.Error() }

func (e SourceError) Unwrap() error { return e.Err }

// Report summarises one collection.
type Report struct {
	Sources int
	Records int
	Failed  []SourceError
	Elapsed time.Duration
}

// Err is ErrAllSourcesFailed, joined with every cause, when every source
// failed, and nil otherwise.
func (r Report) Err() error {
	if r.Sources == 0 || len(r.Failed) < r.Sources {
		return nil
	}
	errs := []error{ErrAllSourcesFailed}
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Collector fetches from many sources at once. A failing source is recorded
// in the report and never stops the others.
type Collector struct {
	Limit    int
	Logger   *zap.Logger
	Recorder metrics.Recorder
}

// Collect runs every source and returns their records grouped by
// repository. Records from the same source keep their order.
func (c Collector) Collect(ctx context.Context, sources []Source, since time.Time) ([]Record, Report) {
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}
	rec := c.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	limit := c.Limit
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	start := time.Now()
	results := make([][]Record, len(sources))
	var (
		mu     sync.Mutex
		failed []SourceError
	)

	var eg errgroup.Group
	eg.SetLimit(limit)
	for i, src := range sources {
		eg.Go(func() error {
			began := time.Now()
			records, err := fetch(ctx, src, since)
			if err != nil {
				log.Warn("Source fetch failed", logging.Source(src.Name()), zap.Error(err))
				rec.RecordSourceFailure(src.Name())
				mu.Lock()
				failed = append(failed, SourceError{Source: src.Name(), Err: err})
				mu.Unlock()
				return nil
			}
			log.Debug("Source fetched", logging.Source(src.Name()),
				zap.Int("records", len(records)), logging.Duration(time.Since(began)))
			results[i] = records
			return nil
		})
	}
	_ = eg.Wait()

	var all []Record
	for _, r := range results {
		all = append(all, r...)
	}
	all = GroupByRepository(all)

	// Failures arrive in completion order; report them in source order.
	ordered := make([]SourceError, 0, len(failed))
	for _, src := range sources {
		for _, f := range failed {
			if f.Source == src.Name() {
				ordered = append(ordered, f)
			}
		}
	}

	return all, Report{
		Sources: len(sources),
		Records: len(all),
		Failed:  ordered,
		Elapsed: time.Since(start),
	}
}

// fetch reports a panicking source as an error.
func fetch(ctx context.Context, src Source, since time.Time) (records []Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("source panicked: %v", p)
		}
	}()
	return src.Fetch(ctx, since)
}

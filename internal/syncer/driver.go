// Package syncer drives one reconciliation run against a sheet: it reads the
// sheet, applies the planned updates and inserts, then sorts every
// repository block with row moves.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"prsheet/internal/blocks"
	"prsheet/internal/logging"
	"prsheet/internal/metrics"
	"prsheet/internal/reconcile"
	"prsheet/internal/row"
)

// Phase is a state of a run. A run moves through the phases in declaration
// order and never skips back.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseIndexBuilt     Phase = "index_built"
	PhasePlanned        Phase = "planned"
	PhaseAppliedUpdate  Phase = "applied_update"
	PhaseAppliedInsert  Phase = "applied_insert"
	PhaseResnapshotted  Phase = "resnapshotted"
	PhaseBlocksDetected Phase = "blocks_detected"
	PhaseSorted         Phase = "sorted"
	PhaseMoved          Phase = "moved"
	PhaseDone           Phase = "done"
)

// ErrCanceled is the cause of a run stopped at a phase boundary because its
// context was done.
var ErrCanceled = errors.New("run canceled")

// Failure reports why a run stopped. Phase is the last state the run reached.
type Failure struct {
	Phase   Phase
	Elapsed time.Duration
	Cause   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("sync failed after %s in phase %s: %v", f.Elapsed.Round(time.Millisecond), f.Phase, f.Cause)
}

func (f *Failure) Unwrap() error { return f.Cause }

// PhaseTiming is the time spent reaching one phase.
type PhaseTiming struct {
	Phase   Phase
	Elapsed time.Duration
}

// Result summarises a run. Failure is nil when the run reached PhaseDone.
type Result struct {
	RunID   string
	Started time.Time
	Elapsed time.Duration
	Phase   Phase
	Timings []PhaseTiming

	Rows      int
	Keys      int
	Updates   int
	Inserts   int
	Unchanged int
	Coalesced int
	Blocks    int
	Unsorted  int
	Moves     int

	Failure *Failure
}

// Err returns the failure as an error, or nil.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Outcome is "success", "canceled" or "failure".
func (r Result) Outcome() string {
	switch {
	case r.Failure == nil:
		return "success"
	case errors.Is(r.Failure, ErrCanceled):
		return "canceled"
	default:
		return "failure"
	}
}

// Fail returns a result for a run that stopped before touching the sheet.
func Fail(runID string, started time.Time, cause error) Result {
	elapsed := time.Since(started)
	return Result{
		RunID:   runID,
		Started: started,
		Elapsed: elapsed,
		Phase:   PhaseIdle,
		Failure: &Failure{Phase: PhaseIdle, Elapsed: elapsed, Cause: cause},
	}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Options tune a Driver. Zero values are usable.
type Options struct {
	Teams    blocks.TeamOrder
	Strict   bool
	Logger   *zap.Logger
	Recorder metrics.Recorder
}

// Driver runs reconciliations against one sheet. A Driver must not run
// concurrently with another writer on the same sheet.
type Driver struct {
	sheet    Sheet
	ref      SheetRef
	cols     row.Columns
	teams    blocks.TeamOrder
	detector blocks.Detector
	log      *zap.Logger
	rec      metrics.Recorder
}

// NewDriver returns a driver for ref.
func NewDriver(sheet Sheet, ref SheetRef, cols row.Columns, opts Options) *Driver {
	d := &Driver{
		sheet:    sheet,
		ref:      ref,
		cols:     cols,
		teams:    opts.Teams,
		detector: blocks.Detector{Strict: opts.Strict},
		log:      opts.Logger,
		rec:      opts.Recorder,
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.rec == nil {
		d.rec = metrics.NoopRecorder{}
	}
	return d
}

// run carries the state of one Run between phases.
type run struct {
	d     *Driver
	log   *zap.Logger
	res   Result
	start time.Time

	snapshot []row.Record
	plan     reconcile.Plan
	blocks   []blocks.Block
	sorted   blocks.Result
}

// Run reconciles incoming into the sheet. Cancellation is honoured only
// between phases; a phase that has started runs to completion.
func (d *Driver) Run(ctx context.Context, incoming []row.Record) Result {
	return d.RunWithID(ctx, NewRunID(), incoming)
}

// RunWithID is Run with a caller supplied run id.
func (d *Driver) RunWithID(ctx context.Context, runID string, incoming []row.Record) Result {
	r := &run{
		d:     d,
		log:   d.log.With(logging.RunID(runID)),
		start: time.Now(),
	}
	r.res = Result{RunID: runID, Started: r.start, Phase: PhaseIdle}

	steps := []struct {
		to Phase
		fn func(context.Context) error
	}{
		{PhaseIndexBuilt, r.readSnapshot},
		{PhasePlanned, func(context.Context) error { r.buildPlan(incoming); return nil }},
		{PhaseAppliedUpdate, r.applyUpdates},
		{PhaseAppliedInsert, r.applyInserts},
		{PhaseResnapshotted, r.resnapshot},
		{PhaseBlocksDetected, r.detectBlocks},
		{PhaseSorted, func(context.Context) error { r.sortBlocks(); return nil }},
		{PhaseMoved, r.applyMoves},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			r.fail(fmt.Errorf("%w before %s: %w", ErrCanceled, s.to, err))
			return r.finish()
		}
		began := time.Now()
		if err := s.fn(context.WithoutCancel(ctx)); err != nil {
			r.fail(err)
			return r.finish()
		}
		took := time.Since(began)
		r.res.Phase = s.to
		r.res.Timings = append(r.res.Timings, PhaseTiming{Phase: s.to, Elapsed: took})
		d.rec.ObservePhase(string(s.to), took)
		r.log.Debug("Phase complete", logging.Phase(string(s.to)), logging.Duration(took))
	}

	r.res.Phase = PhaseDone
	return r.finish()
}

func (r *run) fail(cause error) {
	r.res.Failure = &Failure{Phase: r.res.Phase, Elapsed: time.Since(r.start), Cause: cause}
}

func (r *run) finish() Result {
	r.res.Elapsed = time.Since(r.start)
	if r.res.Failure != nil {
		r.res.Failure.Elapsed = r.res.Elapsed
		r.log.Error("Sync failed",
			logging.Phase(string(r.res.Failure.Phase)),
			logging.Duration(r.res.Elapsed),
			zap.Error(r.res.Failure.Cause))
	} else {
		r.log.Info("Sync complete",
			logging.Duration(r.res.Elapsed),
			zap.Int("updates", r.res.Updates),
			zap.Int("inserts", r.res.Inserts),
			zap.Int("moves", r.res.Moves))
	}
	r.d.rec.RecordRun(r.res.Outcome(), r.res.Elapsed)
	return r.res
}

func (r *run) readSnapshot(ctx context.Context) error {
	rows, err := r.d.sheet.ReadAllRows(ctx, r.d.ref)
	if err != nil {
		return fmt.Errorf("read %s: %w", r.d.ref, err)
	}
	r.snapshot = r.d.cols.ParseAll(rows)
	r.res.Rows = len(r.snapshot)
	r.res.Keys = len(reconcile.BuildIndex(r.snapshot))
	return nil
}

func (r *run) buildPlan(incoming []row.Record) {
	r.plan = reconcile.Build(incoming, r.snapshot)
	r.res.Updates = len(r.plan.Updates)
	r.res.Inserts = len(r.plan.Inserts)
	r.res.Unchanged = r.plan.Unchanged
	r.res.Coalesced = r.plan.Coalesced
}

func (r *run) applyUpdates(ctx context.Context) error {
	if len(r.plan.Updates) == 0 {
		return nil
	}
	var cells []row.Cell
	for _, op := range r.plan.Updates {
		cells = append(cells, r.d.cols.Cells(op.Record, op.Row)...)
	}
	if err := r.d.sheet.ApplyCellUpdates(ctx, r.d.ref, cells); err != nil {
		return fmt.Errorf("apply %d updates: %w", len(r.plan.Updates), err)
	}
	r.d.rec.AddOperations(reconcile.Update.String(), len(r.plan.Updates))
	return nil
}

func (r *run) applyInserts(ctx context.Context) error {
	for i, op := range r.plan.Inserts {
		if err := r.d.sheet.InsertBlankRow(ctx, r.d.ref, op.Row); err != nil {
			r.d.rec.AddOperations(reconcile.Insert.String(), i)
			return fmt.Errorf("insert row %d: %w", op.Row, err)
		}
		if err := r.d.sheet.ApplyCellUpdates(ctx, r.d.ref, r.d.cols.Cells(op.Record, op.Row)); err != nil {
			r.d.rec.AddOperations(reconcile.Insert.String(), i)
			return fmt.Errorf("fill row %d: %w", op.Row, err)
		}
		r.log.Debug("Inserted row", logging.Row(op.Row), logging.Repository(op.Record.Repository))
	}
	r.d.rec.AddOperations(reconcile.Insert.String(), len(r.plan.Inserts))
	return nil
}

// resnapshot re-reads the sheet so sorting sees the post-insert layout. An
// empty plan left the sheet untouched and the first snapshot still holds.
func (r *run) resnapshot(ctx context.Context) error {
	if r.plan.Empty() {
		return nil
	}
	rows, err := r.d.sheet.ReadAllRows(ctx, r.d.ref)
	if err != nil {
		return fmt.Errorf("re-read %s: %w", r.d.ref, err)
	}
	r.snapshot = r.d.cols.ParseAll(rows)
	return nil
}

func (r *run) detectBlocks(context.Context) error {
	found, err := r.d.detector.Detect(r.snapshot)
	if err != nil {
		return err
	}
	r.blocks = found
	r.res.Blocks = len(found)
	return nil
}

func (r *run) sortBlocks() {
	r.sorted = blocks.Sorter{Teams: r.d.teams}.Plan(r.blocks, r.snapshot)
	r.res.Unsorted = r.sorted.Unsorted
}

func (r *run) applyMoves(ctx context.Context) error {
	for i, m := range r.sorted.Moves {
		if err := r.d.sheet.MoveRow(ctx, r.d.ref, m.From, m.To); err != nil {
			r.res.Moves = i
			r.d.rec.AddOperations("move", i)
			return fmt.Errorf("move row %d to %d: %w", m.From, m.To, err)
		}
	}
	r.res.Moves = len(r.sorted.Moves)
	r.d.rec.AddOperations("move", len(r.sorted.Moves))
	return nil
}

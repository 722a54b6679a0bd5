package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"prsheet/internal/blocks"
	"prsheet/internal/row"
)

var testColumns = row.Columns{
	row.FieldKey:        0,
	row.FieldRepository: 1,
	row.FieldFeature:    2,
	row.FieldTeam:       3,
	row.FieldAuthors:    4,
	row.FieldPRs:        5,
	row.FieldMergedAt:   6,
	row.FieldAutoSync:   7,
}

var ref = SheetRef{DocumentID: "doc", SheetName: "prs"}

func line(key, repo, team, authors, merged string) []any {
	feature := key
	if key == "" && repo != "" {
		feature = repo + " features"
	}
	return []any{key, repo, feature, team, authors, "", merged, false}
}

// fixture is two repository blocks separated by a blank row.
func fixture() [][]any {
	return [][]any{
		{"Key", "Repository", "Feature", "Team", "Authors", "PRs", "Merged", "Auto"},
		line("", "api", "", "", ""),
		line("api:A-1", "api", "backend", "alice", "2024-01-03 00:00:00"),
		line("api:A-2", "api", "backend", "alice", "2024-01-01 00:00:00"),
		{},
		line("", "web", "", "", ""),
		line("web:W-1", "web", "frontend", "dana", "2024-01-02 00:00:00"),
	}
}

func incoming(key, repo, team, author, merged string) row.Record {
	return row.Record{
		Key:        key,
		Repository: repo,
		Feature:    key,
		Team:       team,
		Authors:    row.NewSet(author),
		PRs:        row.NewSet("https://example.com/" + key),
		MergedAt:   row.ParseTime(merged),
		AutoSync:   true,
	}
}

func batch() []row.Record {
	return []row.Record{
		incoming("api:A-1", "api", "backend", "bob", "2024-01-03 00:00:00"),
		incoming("web:W-2", "web", "frontend", "erin", "2024-01-01 00:00:00"),
		incoming("api:A-3", "api", "backend", "carol", "2024-01-02 00:00:00"),
	}
}

func keys(rows [][]any) []any {
	out := make([]any, 0, len(rows))
	for _, r := range rows[1:] {
		if len(r) == 0 {
			out = append(out, nil)
			continue
		}
		out = append(out, r[0])
	}
	return out
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
	ops      map[string]int
}

func (c *countingRecorder) ObservePhase(string, time.Duration) {}
func (c *countingRecorder) RecordSourceFailure(string)         {}

func (c *countingRecorder) AddOperations(kind string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ops == nil {
		c.ops = map[string]int{}
	}
	c.ops[kind] += n
}

func (c *countingRecorder) RecordRun(outcome string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func newDriver(t *testing.T, sheet Sheet, opts Options) *Driver {
	t.Helper()
	opts.Logger = zaptest.NewLogger(t)
	if opts.Teams == nil {
		opts.Teams = blocks.TeamOrder{"frontend", "backend"}
	}
	return NewDriver(sheet, ref, testColumns, opts)
}

func TestRunReconcilesAndSorts(t *testing.T) {
	sheet := NewMemorySheet(fixture())
	rec := &countingRecorder{}
	d := newDriver(t, sheet, Options{Recorder: rec})

	res := d.Run(context.Background(), batch())
	require.NoError(t, res.Err())

	assert.Equal(t, PhaseDone, res.Phase)
	assert.Equal(t, 1, res.Updates)
	assert.Equal(t, 2, res.Inserts)
	assert.Equal(t, 2, res.Blocks)
	assert.Equal(t, 2, res.Unsorted)
	assert.Equal(t, 3, res.Moves)
	assert.Len(t, res.Timings, 8)
	assert.NotEmpty(t, res.RunID)

	want := []any{"", "api:A-2", "api:A-3", "api:A-1", nil, "", "web:W-2", "web:W-1"}
	got := keys(sheet.Rows())
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sheet keys mismatch (-want +got):\n%s", diff)
	}

	after := testColumns.ParseAll(sheet.Rows())
	assert.Equal(t, "api:A-1", after[3].Key)
	assert.Equal(t, []string{"alice", "bob"}, after[3].Authors.Sorted())
	assert.True(t, after[2].AutoSync)
	assert.False(t, after[1].AutoSync)

	assert.Equal(t, []string{"success"}, rec.outcomes)
	assert.Equal(t, map[string]int{"update": 1, "insert": 2, "move": 3}, rec.ops)
}

func TestRunMatchesRepositoryIgnoringCase(t *testing.T) {
	sheet := NewMemorySheet([][]any{
		{"Key", "Repository", "Feature", "Team", "Authors", "PRs", "Merged", "Auto"},
		line("", "Org/Api", "", "", ""),
		line("k1", "Org/Api", "backend", "alice", "2024-01-05 00:00:00"),
		line("k2", "Org/Api", "backend", "alice", "2024-01-06 00:00:00"),
	})
	d := newDriver(t, sheet, Options{})

	res := d.Run(context.Background(), []row.Record{
		incoming("k0", "org/api", "backend", "bob", "2024-01-01 00:00:00"),
		incoming("k9", "org/api", "backend", "bob", "2024-01-09 00:00:00"),
	})
	require.NoError(t, res.Err())

	assert.Equal(t, 2, res.Inserts)
	assert.Equal(t, 1, res.Blocks)
	assert.Equal(t, 1, res.Unsorted)
	assert.Equal(t, 1, res.Moves)

	want := []any{"", "k0", "k1", "k2", "k9"}
	if diff := cmp.Diff(want, keys(sheet.Rows())); diff != "" {
		t.Fatalf("sheet keys mismatch (-want +got):\n%s", diff)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	sheet := NewMemorySheet(fixture())
	d := newDriver(t, sheet, Options{})

	require.NoError(t, d.Run(context.Background(), batch()).Err())
	before := sheet.Rows()
	sheet.Ops = nil

	res := d.Run(context.Background(), batch())
	require.NoError(t, res.Err())
	assert.Zero(t, res.Updates)
	assert.Zero(t, res.Inserts)
	assert.Zero(t, res.Moves)
	assert.Equal(t, 3, res.Unchanged)
	assert.Equal(t, []string{"read"}, sheet.Ops)
	assert.Equal(t, before, sheet.Rows())
}

func TestRunCanceledBeforeStart(t *testing.T) {
	sheet := NewMemorySheet(fixture())
	rec := &countingRecorder{}
	d := newDriver(t, sheet, Options{Recorder: rec})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.Run(ctx, batch())
	require.Error(t, res.Err())
	assert.ErrorIs(t, res.Err(), ErrCanceled)
	assert.ErrorIs(t, res.Err(), context.Canceled)
	assert.Equal(t, PhaseIdle, res.Failure.Phase)
	assert.Equal(t, "canceled", res.Outcome())
	assert.Empty(t, sheet.Ops)
	assert.Equal(t, []string{"canceled"}, rec.outcomes)
}

func TestRunFinishesPhaseBeforeHonouringCancel(t *testing.T) {
	sheet := NewMemorySheet(fixture())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sheet.Fail = func(op string) error {
		if op == "insert" {
			cancel()
		}
		return nil
	}
	d := newDriver(t, sheet, Options{})

	res := d.Run(ctx, batch())
	require.Error(t, res.Err())
	assert.ErrorIs(t, res.Err(), ErrCanceled)
	assert.Equal(t, PhaseAppliedInsert, res.Failure.Phase)

	inserts := 0
	for _, op := range sheet.Ops {
		if op == "insert" {
			inserts++
		}
	}
	assert.Equal(t, 2, inserts)
	assert.NotContains(t, sheet.Ops, "move")
}

func TestRunReportsFailedPhase(t *testing.T) {
	injected := errors.New("quota exhausted")
	sheet := NewMemorySheet(fixture())
	sheet.Fail = func(op string) error {
		if op == "insert" {
			return injected
		}
		return nil
	}
	d := newDriver(t, sheet, Options{})

	res := d.Run(context.Background(), batch())
	require.Error(t, res.Err())
	assert.ErrorIs(t, res.Err(), injected)
	assert.Equal(t, PhaseAppliedUpdate, res.Failure.Phase)
	assert.Equal(t, "failure", res.Outcome())
	assert.Positive(t, res.Failure.Elapsed)

	// The update batch landed before the failure.
	after := testColumns.ParseAll(sheet.Rows())
	assert.True(t, after[1].Authors.Has("bob"))
}

func TestRunStrictRejectsOrphanRow(t *testing.T) {
	rows := fixture()
	rows = append(rows[:1], append([][]any{{"", "", "Orphan"}}, rows[1:]...)...)
	sheet := NewMemorySheet(rows)
	d := newDriver(t, sheet, Options{Strict: true})

	res := d.Run(context.Background(), nil)
	require.Error(t, res.Err())
	assert.ErrorIs(t, res.Err(), blocks.ErrNoOpenBlock)
	assert.Equal(t, PhaseResnapshotted, res.Failure.Phase)

	lenient := newDriver(t, NewMemorySheet(rows), Options{})
	assert.NoError(t, lenient.Run(context.Background(), nil).Err())
}

func TestPlanDoesNotWrite(t *testing.T) {
	sheet := NewMemorySheet(fixture())
	d := newDriver(t, sheet, Options{})

	p, err := d.Plan(context.Background(), batch())
	require.NoError(t, err)
	assert.Len(t, p.Plan.Updates, 1)
	assert.Len(t, p.Plan.Inserts, 2)
	assert.Len(t, p.Blocks, 2)
	assert.Len(t, p.Sort.Moves, 3)
	assert.Equal(t, []string{"read"}, sheet.Ops)
	assert.Equal(t, fixture(), sheet.Rows())
}

func TestFailBeforeSheetIsTouched(t *testing.T) {
	cause := errors.New("all sources failed")
	res := Fail("run-1", time.Now(), cause)
	assert.Equal(t, PhaseIdle, res.Failure.Phase)
	assert.ErrorIs(t, res.Err(), cause)
	assert.Contains(t, res.Err().Error(), "phase idle")
}

package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"prsheet/internal/config"
	"prsheet/internal/history"
	"prsheet/internal/source"
	"prsheet/internal/structures"
	"prsheet/internal/syncer"
)

type fixedSource struct {
	name    string
	records []source.Record
	err     error
	since   *time.Time
}

func (f fixedSource) Name() string { return f.name }

func (f fixedSource) Fetch(_ context.Context, since time.Time) ([]source.Record, error) {
	if f.since != nil {
		*f.since = since
	}
	return f.records, f.err
}

func testConfig() structures.Config {
	cfg := config.Default()
	cfg.Sheet.ID = "doc"
	cfg.Sheet.CredentialsPath = "/etc/prsheet/creds.json"
	cfg.Teams = []string{"core"}
	cfg.Lookback = 48 * time.Hour
	return cfg
}

func header() [][]any {
	return [][]any{{"Key", "Repository", "Feature", "Team", "Authors", "PRs", "Merged", "Auto"}}
}

func newRunner(t *testing.T, sheet syncer.Sheet, srcs []source.Source, store *history.Store) *Runner {
	t.Helper()
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	r, err := New(context.Background(), testConfig(), Deps{
		Logger:  zaptest.NewLogger(t),
		History: store,
		Sheet:   sheet,
		Sources: srcs,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)
	return r
}

func openStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunWritesRecordsAndHistory(t *testing.T) {
	var since time.Time
	merged := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	srcs := []source.Source{
		fixedSource{name: "github:acme/api", since: &since, records: []source.Record{
			{Repository: "acme/api", Feature: "PROJ-1", Team: "core", Author: "Kim", PRURL: "https://gh/1", MergedAt: merged, Key: "acme/api:PROJ-1"},
		}},
		fixedSource{name: "gitlab:acme/web", err: errors.New("401 Unauthorized")},
	}
	sheet := syncer.NewMemorySheet(header())
	store := openStore(t)

	out := newRunner(t, sheet, srcs, store).Run(context.Background())
	require.NoError(t, out.Result.Err())

	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), since)
	assert.Equal(t, 1, out.Result.Inserts)
	assert.Len(t, out.Report.Failed, 1)

	rows := sheet.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "acme/api:PROJ-1", rows[1][0])
	assert.Equal(t, "2024-03-09 08:00:00", rows[1][6])
	assert.Equal(t, true, rows[1][7])

	runs, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, out.Result.RunID, runs[0].ID)
	assert.Equal(t, "success", runs[0].Outcome)
	assert.Equal(t, 1, runs[0].SourcesFailed)
}

func TestRunAllSourcesFailedLeavesSheetAlone(t *testing.T) {
	srcs := []source.Source{fixedSource{name: "github:acme/api", err: errors.New("timeout")}}
	sheet := syncer.NewMemorySheet(header())
	store := openStore(t)

	out := newRunner(t, sheet, srcs, store).Run(context.Background())
	require.Error(t, out.Result.Err())
	assert.ErrorIs(t, out.Result.Err(), source.ErrAllSourcesFailed)
	assert.Equal(t, syncer.PhaseIdle, out.Result.Failure.Phase)
	assert.Empty(t, sheet.Ops)

	runs, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "failure", runs[0].Outcome)
	assert.Equal(t, "idle", runs[0].Phase)
}

func TestPlanPreviewsWithoutWriting(t *testing.T) {
	srcs := []source.Source{fixedSource{name: "s", records: []source.Record{
		{Repository: "acme/api", Feature: "PROJ-2", Key: "acme/api:PROJ-2", PRURL: "https://gh/2"},
		{Repository: "acme/api", Feature: "PROJ-3", Key: "acme/api:PROJ-3", PRURL: "https://gh/3"},
	}}}
	sheet := syncer.NewMemorySheet(header())

	p, report, err := newRunner(t, sheet, srcs, nil).Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Records)
	assert.Len(t, p.Plan.Inserts, 2)
	assert.Equal(t, []string{"read"}, sheet.Ops)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Columns.Team = cfg.Columns.Key
	_, err := New(context.Background(), cfg, Deps{Sheet: syncer.NewMemorySheet(header()), Sources: []source.Source{}})
	assert.Error(t, err)
}

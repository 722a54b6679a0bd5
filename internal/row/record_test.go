package row

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testColumns(t *testing.T) Columns {
	t.Helper()
	cols, err := ParseColumns(map[Field]string{
		FieldKey:        "A",
		FieldRepository: "B",
		FieldFeature:    "C",
		FieldTeam:       "D",
		FieldAuthors:    "E",
		FieldPRs:        "F",
		FieldMergedAt:   "G",
		FieldAutoSync:   "H",
	})
	require.NoError(t, err)
	return cols
}

func TestParseShortRowReadsBlank(t *testing.T) {
	cols := testColumns(t)
	rec := cols.Parse([]any{"api:ABC-1", "api"}, 4)

	assert.Equal(t, 4, rec.Position)
	assert.Equal(t, "api:ABC-1", rec.Key)
	assert.Equal(t, "api", rec.Repository)
	assert.Empty(t, rec.Feature)
	assert.Empty(t, rec.Authors)
	assert.False(t, rec.HasMergedAt())
	assert.False(t, rec.AutoSync)
}

func TestParseMultiValuedCells(t *testing.T) {
	cols := testColumns(t)
	rec := cols.Parse([]any{
		"k", "api", "ABC-1", "Core",
		"Alice\n alice \n\nBob\r\n",
		"https://x/pr/1\nhttps://x/pr/1\nhttps://x/pr/2",
		"2024-03-01 10:00:00",
		"true",
	}, 2)

	assert.ElementsMatch(t, []string{"Alice", "Bob"}, rec.Authors.Sorted())
	assert.Equal(t, 2, len(rec.PRs))
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), rec.MergedAt)
	assert.True(t, rec.AutoSync)
}

func TestParseAutoSyncTolerant(t *testing.T) {
	cols := testColumns(t)
	cases := []struct {
		name string
		v    any
		want bool
	}{
		{"bool true", true, true},
		{"upper", "TRUE", true},
		{"false", "FALSE", false},
		{"garbage", "yes", false},
		{"number", float64(1), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cells := make([]any, 8)
			cells[7] = tc.v
			assert.Equal(t, tc.want, cols.Parse(cells, 2).AutoSync)
		})
	}
}

func TestParseHyperlinkFeature(t *testing.T) {
	cols := testColumns(t)
	rec := cols.Parse([]any{"", "api", `=HYPERLINK("https://jira/browse/ABC-1","ABC-1 ""quoted""")`}, 2)

	assert.Equal(t, `ABC-1 "quoted"`, rec.Feature)
	assert.Equal(t, "https://jira/browse/ABC-1", rec.FeatureURL)
}

func TestToCellsPreservesUnmappedColumns(t *testing.T) {
	cols, err := ParseColumns(map[Field]string{
		FieldKey: "A", FieldRepository: "B", FieldFeature: "C", FieldTeam: "D",
		FieldAuthors: "E", FieldPRs: "F", FieldMergedAt: "H", FieldAutoSync: "I",
	})
	require.NoError(t, err)

	rec := Record{
		Key:        "api:ABC-1",
		Repository: "api",
		Feature:    "ABC-1",
		FeatureURL: "https://jira/browse/ABC-1",
		Team:       "Core",
		Authors:    NewSet("bob", "Alice"),
		PRs:        NewSet("https://x/pr/2", "https://x/pr/1"),
		MergedAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		AutoSync:   true,
	}
	cells := cols.ToCells(rec, []any{"old", "old", "old", "old", "old", "old", "human note"})

	require.Len(t, cells, 9)
	assert.Equal(t, "human note", cells[6])
	assert.Equal(t, "Alice\nbob", cells[4])
	assert.Equal(t, "https://x/pr/1\nhttps://x/pr/2", cells[5])
	assert.Equal(t, `=HYPERLINK("https://jira/browse/ABC-1","ABC-1")`, cells[2])
	assert.Equal(t, "2024-03-01 10:00:00", cells[7])
	assert.Equal(t, true, cells[8])

	back := cols.Parse(cells, 3)
	assert.True(t, Equal(rec, back))
}

func TestMergeUnionsAndKeepsMergeTime(t *testing.T) {
	merged := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	existing := Record{
		Position: 7,
		Key:      "k",
		Team:     "Old",
		Authors:  NewSet("A"),
		PRs:      NewSet("https://x/pr/1"),
		MergedAt: merged,
	}
	incoming := Record{
		Key:     "k",
		Team:    "New",
		Authors: NewSet("B", "a"),
		PRs:     NewSet("https://x/pr/2"),
	}

	out := Merge(existing, incoming)

	assert.Equal(t, 7, out.Position)
	assert.Equal(t, []string{"A", "B"}, out.Authors.Sorted())
	assert.Equal(t, 2, len(out.PRs))
	assert.Equal(t, merged, out.MergedAt)
	assert.Equal(t, "New", out.Team)

	later := merged.Add(time.Hour)
	incoming.MergedAt = later
	assert.Equal(t, later, Merge(existing, incoming).MergedAt)
}

func TestParseTimeLayouts(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-01 10:30:00", "2024-03-01T10:30:00Z", "2024-03-01 10:30", "3/1/2024 10:30:00"} {
		assert.Equal(t, want, ParseTime(s), s)
	}
	assert.True(t, ParseTime("next tuesday").IsZero())
	assert.True(t, ParseTime("").IsZero())
}

func TestParseAllSkipsHeader(t *testing.T) {
	cols := testColumns(t)
	recs := cols.ParseAll([][]any{
		{"Key", "Repository"},
		{"k1", "api"},
		{},
		{"k2", "web"},
	})
	require.Len(t, recs, 3)
	assert.Equal(t, 2, recs[0].Position)
	assert.True(t, recs[1].Blank())
	assert.Equal(t, 4, recs[2].Position)
}

// Package row converts between raw sheet cells and structured row records.
//
// Decoding is tolerant: cells past the end of a physical row read as blank,
// unparseable timestamps read as absent, and any auto-sync value other than
// the canonical TRUE token reads as false.
package row

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the layout merge timestamps are written with.
const TimeLayout = "2006-01-02 15:04:05"

// trueToken is the canonical spelling of a checked auto-sync cell.
const trueToken = "TRUE"

var readLayouts = []string{
	TimeLayout,
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
}

var hyperlinkRe = regexp.MustCompile(`(?i)^=HYPERLINK\(\s*"((?:[^"]|"")*)"\s*[,;]\s*"((?:[^"]|"")*)"\s*\)$`)

// Record is one parsed sheet row.
type Record struct {
	// Position is the 1-based sheet row; the header is row 1.
	Position   int
	Key        string
	Repository string
	Feature    string
	FeatureURL string
	Team       string
	Authors    Set
	PRs        Set
	MergedAt   time.Time
	AutoSync   bool
}

// HasMergedAt reports whether a merge timestamp is present.
func (r Record) HasMergedAt() bool { return !r.MergedAt.IsZero() }

// Repositories splits the comma separated repository cell.
func (r Record) Repositories() []string {
	return SplitRepositories(r.Repository)
}

// Blank reports whether the row carries neither a repository nor a feature.
func (r Record) Blank() bool {
	return strings.TrimSpace(r.Repository) == "" && strings.TrimSpace(r.Feature) == ""
}

// SplitRepositories splits a comma separated repository list, dropping blanks.
func SplitRepositories(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Parse decodes the cells of one physical row at the given position.
func (c Columns) Parse(cells []any, position int) Record {
	rec := Record{
		Position:   position,
		Key:        c.text(cells, FieldKey),
		Repository: c.text(cells, FieldRepository),
		Team:       c.text(cells, FieldTeam),
		Authors:    SplitSet(c.text(cells, FieldAuthors)),
		PRs:        SplitSet(c.text(cells, FieldPRs)),
		MergedAt:   ParseTime(c.text(cells, FieldMergedAt)),
		AutoSync:   parseBool(c.cell(cells, FieldAutoSync)),
	}
	rec.Feature, rec.FeatureURL = ParseHyperlink(c.text(cells, FieldFeature))
	return rec
}

// ParseAll decodes a full sheet snapshot, skipping the header row. The
// returned records carry 1-based positions, so the first data row is 2.
func (c Columns) ParseAll(rows [][]any) []Record {
	if len(rows) <= 1 {
		return nil
	}
	out := make([]Record, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		out = append(out, c.Parse(rows[i], i+1))
	}
	return out
}

// ToCells encodes rec onto a copy of existing, leaving unmapped columns as
// they were. The result is at least Width() cells long.
func (c Columns) ToCells(rec Record, existing []any) []any {
	n := max(len(existing), c.Width())
	out := make([]any, n)
	copy(out, existing)
	for i := len(existing); i < n; i++ {
		out[i] = ""
	}
	for f, idx := range c {
		out[idx] = encode(rec, f)
	}
	return out
}

// Cell is a single value to write at a 1-based row and 0-based column.
type Cell struct {
	Row    int
	Column int
	Value  any
}

// Cells returns the writes that place rec at the given row.
func (c Columns) Cells(rec Record, rowPos int) []Cell {
	out := make([]Cell, 0, len(Fields))
	for _, f := range Fields {
		idx, ok := c[f]
		if !ok {
			continue
		}
		out = append(out, Cell{Row: rowPos, Column: idx, Value: encode(rec, f)})
	}
	return out
}

func encode(rec Record, f Field) any {
	switch f {
	case FieldKey:
		return rec.Key
	case FieldRepository:
		return rec.Repository
	case FieldFeature:
		if rec.FeatureURL != "" {
			return Hyperlink(rec.FeatureURL, rec.Feature)
		}
		return rec.Feature
	case FieldTeam:
		return rec.Team
	case FieldAuthors:
		return rec.Authors.Join()
	case FieldPRs:
		return rec.PRs.Join()
	case FieldMergedAt:
		return FormatTime(rec.MergedAt)
	case FieldAutoSync:
		return rec.AutoSync
	}
	return ""
}

// Merge folds an incoming record into an existing row. Authors and PR URLs
// are unioned, the merge time is only replaced when incoming has one, and
// every other field takes the incoming value. The existing position is kept.
func Merge(existing, incoming Record) Record {
	out := incoming
	out.Position = existing.Position
	out.Authors = existing.Authors.Union(incoming.Authors)
	out.PRs = existing.PRs.Union(incoming.PRs)
	if !incoming.HasMergedAt() {
		out.MergedAt = existing.MergedAt
	}
	return out
}

// Equal reports whether two records encode to the same cells. Positions are
// ignored.
func Equal(a, b Record) bool {
	for _, f := range Fields {
		if fmt.Sprint(encode(a, f)) != fmt.Sprint(encode(b, f)) {
			return false
		}
	}
	return true
}

// Hyperlink builds a spreadsheet HYPERLINK formula.
func Hyperlink(url, label string) string {
	return fmt.Sprintf(`=HYPERLINK("%s","%s")`, escapeFormula(url), escapeFormula(label))
}

// ParseHyperlink splits a HYPERLINK formula into label and URL. Plain text
// is returned as the label with an empty URL.
func ParseHyperlink(cell string) (label, url string) {
	m := hyperlinkRe.FindStringSubmatch(strings.TrimSpace(cell))
	if m == nil {
		return strings.TrimSpace(cell), ""
	}
	return unescapeFormula(m[2]), unescapeFormula(m[1])
}

func escapeFormula(s string) string   { return strings.ReplaceAll(s, `"`, `""`) }
func unescapeFormula(s string) string { return strings.ReplaceAll(s, `""`, `"`) }

// FormatTime renders a merge timestamp in UTC; the zero time renders blank.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts the layouts a human or the sheet renderer may produce.
// Anything unrecognised yields the zero time.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range readLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), trueToken)
	}
	return false
}

func (c Columns) cell(cells []any, f Field) any {
	idx, ok := c[f]
	if !ok || idx < 0 || idx >= len(cells) {
		return nil
	}
	return cells[idx]
}

func (c Columns) text(cells []any, f Field) string {
	switch v := c.cell(cells, f).(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

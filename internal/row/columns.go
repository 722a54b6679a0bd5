package row

import (
	"fmt"
	"strings"
)

// Field names a logical column of the sheet.
type Field string

const (
	FieldKey        Field = "key"
	FieldRepository Field = "repository"
	FieldFeature    Field = "feature"
	FieldTeam       Field = "team"
	FieldAuthors    Field = "authors"
	FieldPRs        Field = "prs"
	FieldMergedAt   Field = "merged_at"
	FieldAutoSync   Field = "auto_sync"
)

// Fields lists every field a column mapping must place.
var Fields = []Field{
	FieldKey,
	FieldRepository,
	FieldFeature,
	FieldTeam,
	FieldAuthors,
	FieldPRs,
	FieldMergedAt,
	FieldAutoSync,
}

// maxColumnLetters bounds letter encodings to the ZZZ range used by spreadsheets.
const maxColumnLetters = 3

// Columns maps each field to its 0-based column position.
type Columns map[Field]int

// ParseColumns validates a field -> column-letter mapping. Every field must be
// present, well formed, and placed in a distinct column.
func ParseColumns(letters map[Field]string) (Columns, error) {
	cols := make(Columns, len(Fields))
	owner := make(map[int]Field, len(Fields))
	for _, f := range Fields {
		letter, ok := letters[f]
		if !ok || strings.TrimSpace(letter) == "" {
			return nil, fmt.Errorf("column for %q is not mapped", f)
		}
		idx, err := ColumnIndex(letter)
		if err != nil {
			return nil, fmt.Errorf("column for %q: %w", f, err)
		}
		if prev, dup := owner[idx]; dup {
			return nil, fmt.Errorf("column %s is mapped to both %q and %q", ColumnLetter(idx), prev, f)
		}
		owner[idx] = f
		cols[f] = idx
	}
	return cols, nil
}

// ColumnIndex converts a column letter ("A", "AB") into a 0-based position.
func ColumnIndex(letter string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(letter))
	if s == "" || len(s) > maxColumnLetters {
		return 0, fmt.Errorf("invalid column letter %q", letter)
	}
	n := 0
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column letter %q", letter)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

// ColumnLetter converts a 0-based position back into its letter encoding.
func ColumnLetter(idx int) string {
	if idx < 0 {
		return ""
	}
	var b []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// Width is the number of physical columns needed to hold every mapped field.
func (c Columns) Width() int {
	w := 0
	for _, idx := range c {
		if idx+1 > w {
			w = idx + 1
		}
	}
	return w
}

// LastLetter is the letter of the right-most mapped column.
func (c Columns) LastLetter() string {
	return ColumnLetter(c.Width() - 1)
}

package row

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// Fold normalises a value for case-insensitive comparison.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Set is an unordered, case-insensitive set of strings. The first spelling
// seen for a value is the one kept for display.
type Set map[string]string

// NewSet builds a set from the given values, dropping blanks.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// SplitSet decodes a multi-line cell: one value per line, trimmed, blanks
// dropped, duplicates collapsed case-insensitively.
func SplitSet(cell string) Set {
	cell = strings.ReplaceAll(cell, "\r\n", "\n")
	return NewSet(strings.Split(cell, "\n")...)
}

// Add inserts v unless it is blank or already present.
func (s Set) Add(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	k := Fold(v)
	if _, ok := s[k]; !ok {
		s[k] = v
	}
}

// Has reports whether v is in the set.
func (s Set) Has(v string) bool {
	_, ok := s[Fold(v)]
	return ok
}

// Union returns a new set holding the members of s and o.
func (s Set) Union(o Set) Set {
	out := make(Set, len(s)+len(o))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range o {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Sorted returns the display values ordered by their folded form.
func (s Set) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = s[k]
	}
	return out
}

// Join encodes the set as a multi-line cell value.
func (s Set) Join() string {
	return strings.Join(s.Sorted(), "\n")
}

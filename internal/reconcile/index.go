// Package reconcile plans the Update and Insert operations that bring a
// sheet snapshot in line with a batch of incoming records.
package reconcile

import (
	"strings"

	"prsheet/internal/row"
)

// Index maps a folded unique key to the row currently holding it.
type Index map[string]int

// BuildIndex indexes every non-blank key. A duplicated key keeps the last
// row that carries it.
func BuildIndex(rows []row.Record) Index {
	ix := make(Index, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r.Key) == "" {
			continue
		}
		ix[row.Fold(r.Key)] = r.Position
	}
	return ix
}

// Lookup returns the row holding key, if any.
func (ix Index) Lookup(key string) (int, bool) {
	if strings.TrimSpace(key) == "" {
		return 0, false
	}
	pos, ok := ix[row.Fold(key)]
	return pos, ok
}

package reconcile

import (
	"prsheet/internal/row"
)

// Cursor tracks where the next row for one repository should land.
type Cursor struct {
	// Position is the last row currently belonging to the repository.
	Position int
	// Existing is false for repositories that have no rows in the sheet.
	Existing bool
	absorbed bool
}

// Absorb shifts the cursor by the rows inserted above it so far. Only the
// first call has any effect.
func (c *Cursor) Absorb(offset int) {
	if c.absorbed {
		return
	}
	c.Position += offset
	c.absorbed = true
}

// Absorbed reports whether the running offset has been applied.
func (c *Cursor) Absorbed() bool { return c.absorbed }

// Advance moves the cursor onto a row just inserted below it.
func (c *Cursor) Advance() { c.Position++ }

// Tracker holds one cursor per repository for a single planning pass.
type Tracker struct {
	cursors map[string]*Cursor
	lastRow int
}

// NewTracker records, for every repository named in rows, the last row that
// names it. A row listing several repositories counts for each of them.
func NewTracker(rows []row.Record) *Tracker {
	t := &Tracker{cursors: make(map[string]*Cursor), lastRow: 1}
	for _, r := range rows {
		if !r.Blank() && r.Position > t.lastRow {
			t.lastRow = r.Position
		}
		for _, name := range r.Repositories() {
			t.cursors[row.Fold(name)] = &Cursor{Position: r.Position, Existing: true}
		}
	}
	return t
}

// Lookup returns the cursor of a repository that already has rows.
func (t *Tracker) Lookup(repo string) (*Cursor, bool) {
	c, ok := t.cursors[row.Fold(repo)]
	return c, ok
}

// Cursor returns the cursor for repo, creating one seeded at the last used
// row of the sheet when the repository has no rows yet.
func (t *Tracker) Cursor(repo string) *Cursor {
	k := row.Fold(repo)
	if c, ok := t.cursors[k]; ok {
		return c
	}
	c := &Cursor{Position: t.lastRow}
	t.cursors[k] = c
	return c
}

package reconcile

import (
	"cmp"
	"slices"
	"strings"

	"prsheet/internal/row"
)

// Kind tags a reconciliation operation.
type Kind int

const (
	// Update rewrites a pre-existing row in place.
	Update Kind = iota + 1
	// Insert adds a blank row and fills it.
	Insert
)

func (k Kind) String() string {
	switch k {
	case Update:
		return "update"
	case Insert:
		return "insert"
	}
	return "unknown"
}

// Operation is one planned write. Update rows are positions in the snapshot
// the plan was built from. Insert rows already include every insert emitted
// before them, so inserts must be applied in order.
type Operation struct {
	Kind   Kind
	Row    int
	Record row.Record
}

// Plan is the outcome of one planning pass.
type Plan struct {
	Updates []Operation
	Inserts []Operation
	// Unchanged counts matched rows whose merged content equals the sheet.
	Unchanged int
	// Coalesced counts incoming records folded into another record with the
	// same key in this batch.
	Coalesced int
}

// Empty reports whether the plan writes nothing.
func (p Plan) Empty() bool { return len(p.Updates) == 0 && len(p.Inserts) == 0 }

// Operations returns updates followed by inserts, the order they must be
// applied in.
func (p Plan) Operations() []Operation {
	out := make([]Operation, 0, len(p.Updates)+len(p.Inserts))
	out = append(out, p.Updates...)
	return append(out, p.Inserts...)
}

type pendingRepo struct {
	name    string
	records []row.Record
}

type pendingRef struct {
	repo *pendingRepo
	idx  int
}

// Build plans the writes for incoming against existing, the snapshot rows
// below the header. incoming is processed in the order given.
func Build(incoming, existing []row.Record) Plan {
	index := BuildIndex(existing)
	tracker := NewTracker(existing)

	byPos := make(map[int]row.Record, len(existing))
	for _, r := range existing {
		byPos[r.Position] = r
	}

	var plan Plan

	// Match pass.
	merged := make(map[int]row.Record)
	var touched []int
	var repos []*pendingRepo
	repoByName := make(map[string]*pendingRepo)
	pendingByKey := make(map[string]pendingRef)

	for _, rec := range incoming {
		if pos, ok := index.Lookup(rec.Key); ok {
			base, seen := merged[pos]
			if !seen {
				base = byPos[pos]
				touched = append(touched, pos)
			} else {
				plan.Coalesced++
			}
			merged[pos] = row.Merge(base, rec)
			continue
		}

		if k := row.Fold(rec.Key); k != "" {
			if ref, ok := pendingByKey[k]; ok {
				ref.repo.records[ref.idx] = row.Merge(ref.repo.records[ref.idx], rec)
				plan.Coalesced++
				continue
			}
		}

		name := groupName(rec)
		pr, ok := repoByName[row.Fold(name)]
		if !ok {
			pr = &pendingRepo{name: name}
			repoByName[row.Fold(name)] = pr
			repos = append(repos, pr)
		}
		pr.records = append(pr.records, rec)
		if k := row.Fold(rec.Key); k != "" {
			pendingByKey[k] = pendingRef{repo: pr, idx: len(pr.records) - 1}
		}
	}

	for _, pos := range touched {
		if row.Equal(merged[pos], byPos[pos]) {
			plan.Unchanged++
			continue
		}
		plan.Updates = append(plan.Updates, Operation{Kind: Update, Row: pos, Record: merged[pos]})
	}

	// Insert pass: repositories in ascending order of their current last
	// row, repositories without rows after all others in encounter order.
	slices.SortStableFunc(repos, func(a, b *pendingRepo) int {
		return cmp.Compare(sortPosition(tracker, a.name), sortPosition(tracker, b.name))
	})

	offset := 0
	for _, pr := range repos {
		c := tracker.Cursor(pr.name)
		c.Absorb(offset)
		for _, rec := range pr.records {
			at := c.Position + 1
			rec.Position = at
			plan.Inserts = append(plan.Inserts, Operation{Kind: Insert, Row: at, Record: rec})
			offset++
			c.Advance()
		}
	}

	return plan
}

// groupName is the repository a pending record is inserted under: the first
// one listed.
func groupName(rec row.Record) string {
	if names := rec.Repositories(); len(names) > 0 {
		return names[0]
	}
	return strings.TrimSpace(rec.Repository)
}

func sortPosition(t *Tracker, repo string) int {
	if c, ok := t.Lookup(repo); ok && c.Existing {
		return c.Position
	}
	return int(^uint(0) >> 1)
}

// Project returns the snapshot rows as they read once plan has been applied,
// renumbered from row 2.
func Project(existing []row.Record, plan Plan) []row.Record {
	out := slices.Clone(existing)
	for _, op := range plan.Updates {
		if i := op.Row - 2; i >= 0 && i < len(out) {
			out[i] = op.Record
		}
	}
	for _, op := range plan.Inserts {
		i := op.Row - 2
		for len(out) < i {
			out = append(out, row.Record{})
		}
		out = slices.Insert(out, i, op.Record)
	}
	for i := range out {
		out[i].Position = i + 2
	}
	return out
}

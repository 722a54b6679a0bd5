package blocks

import (
	"cmp"
	"slices"

	"prsheet/internal/row"
)

// TeamOrder ranks teams by their index. Teams not listed rank after every
// listed team.
type TeamOrder []string

// Rank returns the sort rank of team.
func (o TeamOrder) Rank(team string) int {
	k := row.Fold(team)
	for i, t := range o {
		if row.Fold(t) == k {
			return i
		}
	}
	return len(o)
}

// Move relocates one row so that it ends up at To. Rows between the two
// positions shift by one toward From.
type Move struct {
	From int
	To   int
}

// Order returns the block's data-row positions in target order: team rank,
// then rows with a merge time by ascending time, then rows without one.
// Ties keep sheet order.
func Order(b Block, rows map[int]row.Record, teams TeamOrder) []int {
	positions := make([]int, 0, b.DataRows())
	for p := b.DataStart(); p <= b.End; p++ {
		positions = append(positions, p)
	}
	slices.SortStableFunc(positions, func(x, y int) int {
		a, c := rows[x], rows[y]
		if d := cmp.Compare(teams.Rank(a.Team), teams.Rank(c.Team)); d != 0 {
			return d
		}
		switch {
		case a.HasMergedAt() && !c.HasMergedAt():
			return -1
		case !a.HasMergedAt() && c.HasMergedAt():
			return 1
		}
		return a.MergedAt.Compare(c.MergedAt)
	})
	return positions
}

// InOrder reports whether order is already the run start, start+1, ...
func InOrder(start int, order []int) bool {
	for i, p := range order {
		if p != start+i {
			return false
		}
	}
	return true
}

// PlanMoves returns the moves that rearrange the rows starting at start into
// order, a permutation of start..start+len(order)-1. It walks target slots
// left to right and moves the wanted row up into each slot, so n rows need
// at most n-1 moves and rows already in place are never touched.
func PlanMoves(start int, order []int) []Move {
	current := make([]int, len(order))
	for i := range current {
		current[i] = start + i
	}
	var moves []Move
	for i, want := range order {
		j := slices.Index(current, want)
		if j == i || j < 0 {
			continue
		}
		moves = append(moves, Move{From: start + j, To: start + i})
		current = slices.Delete(current, j, j+1)
		current = slices.Insert(current, i, want)
	}
	return moves
}

// Sorter plans moves for every block of a snapshot.
type Sorter struct {
	Teams TeamOrder
}

// Result summarises one sorting pass.
type Result struct {
	Blocks   int
	Unsorted int
	Moves    []Move
}

// Plan returns the moves for every block that is out of order. Moves stay
// inside their block, so blocks never disturb each other's positions.
func (s Sorter) Plan(blocks []Block, rows []row.Record) Result {
	byPos := make(map[int]row.Record, len(rows))
	for _, r := range rows {
		byPos[r.Position] = r
	}
	res := Result{Blocks: len(blocks)}
	for _, b := range blocks {
		if !b.NeedsSorting() {
			continue
		}
		order := Order(b, byPos, s.Teams)
		if InOrder(b.DataStart(), order) {
			continue
		}
		res.Unsorted++
		res.Moves = append(res.Moves, PlanMoves(b.DataStart(), order)...)
	}
	return res
}

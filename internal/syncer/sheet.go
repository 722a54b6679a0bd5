package syncer

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"prsheet/internal/row"
)

// SheetRef names one tab of a spreadsheet document.
type SheetRef struct {
	DocumentID string
	SheetName  string
}

func (r SheetRef) String() string { return r.DocumentID + "/" + r.SheetName }

// Sheet is the tabular document the driver reconciles against. Rows and
// columns are addressed the way the sheet shows them: row 1 is the header.
type Sheet interface {
	// ReadAllRows returns every row including the header.
	ReadAllRows(ctx context.Context, ref SheetRef) ([][]any, error)
	ApplyCellUpdates(ctx context.Context, ref SheetRef, cells []row.Cell) error
	// InsertBlankRow shifts the row at position and everything below it down
	// by one.
	InsertBlankRow(ctx context.Context, ref SheetRef, position int) error
	// MoveRow relocates a row so that it ends up at position to.
	MoveRow(ctx context.Context, ref SheetRef, from, to int) error
}

// MemorySheet is an in-process Sheet. Fail, when set, is consulted before
// every operation and may return an error to inject a failure.
type MemorySheet struct {
	mu   sync.Mutex
	rows [][]any
	Fail func(op string) error
	Ops  []string
}

// NewMemorySheet returns a sheet holding a copy of rows.
func NewMemorySheet(rows [][]any) *MemorySheet {
	return &MemorySheet{rows: cloneRows(rows)}
}

// Rows returns a copy of the current contents.
func (m *MemorySheet) Rows() [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRows(m.rows)
}

func (m *MemorySheet) begin(op string) error {
	m.Ops = append(m.Ops, op)
	if m.Fail != nil {
		return m.Fail(op)
	}
	return nil
}

func (m *MemorySheet) ReadAllRows(_ context.Context, _ SheetRef) ([][]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("read"); err != nil {
		return nil, err
	}
	return cloneRows(m.rows), nil
}

func (m *MemorySheet) ApplyCellUpdates(_ context.Context, _ SheetRef, cells []row.Cell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("update"); err != nil {
		return err
	}
	for _, c := range cells {
		if c.Row < 1 || c.Column < 0 {
			return fmt.Errorf("cell %d:%d out of range", c.Row, c.Column)
		}
		for len(m.rows) < c.Row {
			m.rows = append(m.rows, []any{})
		}
		r := m.rows[c.Row-1]
		for len(r) <= c.Column {
			r = append(r, "")
		}
		r[c.Column] = c.Value
		m.rows[c.Row-1] = r
	}
	return nil
}

func (m *MemorySheet) InsertBlankRow(_ context.Context, _ SheetRef, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("insert"); err != nil {
		return err
	}
	if position < 2 {
		return fmt.Errorf("insert at row %d: header row cannot move", position)
	}
	for len(m.rows) < position-1 {
		m.rows = append(m.rows, []any{})
	}
	m.rows = slices.Insert(m.rows, position-1, []any{})
	return nil
}

func (m *MemorySheet) MoveRow(_ context.Context, _ SheetRef, from, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("move"); err != nil {
		return err
	}
	if from < 2 || to < 2 || from > len(m.rows) || to > len(m.rows) {
		return fmt.Errorf("move %d to %d out of range", from, to)
	}
	r := m.rows[from-1]
	m.rows = slices.Delete(m.rows, from-1, from)
	m.rows = slices.Insert(m.rows, to-1, r)
	return nil
}

func cloneRows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}

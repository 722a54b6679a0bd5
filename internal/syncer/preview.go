package syncer

import (
	"context"
	"fmt"

	"prsheet/internal/blocks"
	"prsheet/internal/reconcile"
	"prsheet/internal/row"
)

// Preview is what a run would do, computed without writing.
type Preview struct {
	Plan   reconcile.Plan
	Blocks []blocks.Block
	Sort   blocks.Result
}

// Plan reads the sheet once and plans the run against a projection of the
// post-insert layout.
func (d *Driver) Plan(ctx context.Context, incoming []row.Record) (Preview, error) {
	rows, err := d.sheet.ReadAllRows(ctx, d.ref)
	if err != nil {
		return Preview{}, fmt.Errorf("read %s: %w", d.ref, err)
	}
	snapshot := d.cols.ParseAll(rows)
	p := Preview{Plan: reconcile.Build(incoming, snapshot)}

	projected := reconcile.Project(snapshot, p.Plan)
	p.Blocks, err = d.detector.Detect(projected)
	if err != nil {
		return p, err
	}
	p.Sort = blocks.Sorter{Teams: d.teams}.Plan(p.Blocks, projected)
	return p, nil
}

// Package blocks finds the per-repository row blocks of a sheet and plans
// the row moves that put each block in team and merge-time order.
package blocks

import (
	"errors"
	"fmt"
	"strings"

	"prsheet/internal/row"
)

// UnknownRepository names a block whose first rows carry no repository.
const UnknownRepository = "Unknown"

// ErrNoOpenBlock is returned in strict mode for a row with a blank
// repository and no block to inherit one from.
var ErrNoOpenBlock = errors.New("row has no repository and no open block")

// Block is a contiguous run of rows for one repository. The header row is
// the first row of the run and never moves.
type Block struct {
	Header     int
	End        int
	Repository string
}

// DataStart is the first row that takes part in sorting.
func (b Block) DataStart() int { return b.Header + 1 }

// DataRows is the number of rows below the header.
func (b Block) DataRows() int { return b.End - b.Header }

// NeedsSorting reports whether the block has enough data rows to reorder.
func (b Block) NeedsSorting() bool { return b.DataRows() >= 2 }

// Detector scans snapshot rows into blocks.
type Detector struct {
	// Strict rejects a blank-repository row that has no block to inherit
	// from instead of filing it under UnknownRepository.
	Strict bool
}

// Detect scans rows, the snapshot below the header in sheet order.
// Repository names compare case-insensitively; a block keeps the spelling
// of its header row.
func (d Detector) Detect(rows []row.Record) ([]Block, error) {
	var (
		out  []Block
		open *Block
	)
	closeOpen := func() {
		if open != nil {
			out = append(out, *open)
			open = nil
		}
	}

	for _, r := range rows {
		if r.Blank() {
			closeOpen()
			continue
		}
		name := strings.TrimSpace(r.Repository)
		if name == "" {
			switch {
			case open != nil:
				name = open.Repository
			case d.Strict:
				return nil, fmt.Errorf("row %d: %w", r.Position, ErrNoOpenBlock)
			default:
				name = UnknownRepository
			}
		}
		if open != nil && row.Fold(name) != row.Fold(open.Repository) {
			closeOpen()
		}
		if open == nil {
			open = &Block{Header: r.Position, Repository: name}
		}
		open.End = r.Position
	}
	closeOpen()
	return out, nil
}

// Detect runs a lenient Detector.
func Detect(rows []row.Record) []Block {
	out, _ := Detector{}.Detect(rows)
	return out
}

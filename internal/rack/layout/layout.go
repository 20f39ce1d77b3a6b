// Package layout turns the sparse occupied-location list of a rack into the
// dense sequence of tiles the dashboard draws.
package layout

import (
	"fmt"
	"iter"

	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
	"github.com/mohammed-shakir/cellar-rack/internal/rack/bincode"
)

type Option func(*Builder)

func WithGeometry(g Geometry) Option {
	return func(b *Builder) { b.geom = g }
}

// WithStrict makes Build reject unsorted, duplicated or out-of-range input
// instead of producing a misplaced layout.
func WithStrict(strict bool) Option {
	return func(b *Builder) { b.strict = strict }
}

type Builder struct {
	geom   Geometry
	strict bool
}

func New(opts ...Option) (*Builder, error) {
	b := &Builder{geom: DefaultGeometry()}
	for _, o := range opts {
		o(b)
	}
	if err := b.geom.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadGeometry, err)
	}
	return b, nil
}

func (b *Builder) Geometry() Geometry { return b.geom }

// Build lays out locs, which must be sorted ascending by (row, column). The
// result always has Geometry().CellCount() cells: the top shelf, the grid in
// row-major order, then the bottom shelf.
func (b *Builder) Build(store model.StoreID, locs []model.OccupiedLocation) ([]model.DisplayCell, error) {
	if len(locs) == 0 {
		return nil, &InvalidInputError{Reason: ErrEmptyInventory}
	}
	if b.strict {
		if err := Validate(b.geom, locs); err != nil {
			return nil, err
		}
	}
	out := make([]model.DisplayCell, 0, b.geom.CellCount())
	for c := range b.Cells(store, locs) {
		out = append(out, c)
	}
	return out, nil
}

// Cells yields the layout one tile at a time. It walks locs once, advancing
// only when a location matches the grid position being emitted; a location
// that never matches (duplicate, unsorted, off-grid) stalls the cursor and the
// rest of the grid comes out empty.
func (b *Builder) Cells(store model.StoreID, locs []model.OccupiedLocation) iter.Seq[model.DisplayCell] {
	g := b.geom
	coder := bincode.New(store)
	return func(yield func(model.DisplayCell) bool) {
		ix := 0

		top := 0
		for ix < len(locs) && locs[ix].Row == g.TopShelfRow {
			top += locs[ix].Count
			ix++
		}
		if !yield(shelf(coder.Encode(0, g.TopShelfRow), top)) {
			return
		}

		for row := 1; row <= g.Rows; row++ {
			for col := 1; col <= g.Columns; col++ {
				cell := model.DisplayCell{ID: coder.Encode(col, row)}
				if ix < len(locs) && locs[ix].Row == row && locs[ix].Column == col {
					cell.Count = locs[ix].Count
					ix++
				}
				if !yield(cell) {
					return
				}
			}
		}

		bottom := 0
		for ix < len(locs) && locs[ix].Row == g.BottomShelfRow {
			bottom += locs[ix].Count
			ix++
		}
		yield(shelf(coder.Encode(0, g.BottomShelfRow), bottom))
	}
}

func shelf(id model.BinID, count int) model.DisplayCell {
	return model.DisplayCell{ID: id, Count: count, IsDouble: true, IsRow: true}
}

// Validate checks the preconditions Cells relies on. Shelf rows may repeat a
// column since shelf counts are pooled; grid positions may not.
func Validate(g Geometry, locs []model.OccupiedLocation) error {
	if len(locs) == 0 {
		return &InvalidInputError{Reason: ErrEmptyInventory}
	}
	for i, l := range locs {
		if !g.IsShelf(l.Row) && !g.inGrid(l.Column, l.Row) {
			return &InvalidInputError{Reason: ErrOutOfRange, Index: i, Location: l}
		}
		if g.IsShelf(l.Row) && (l.Column < 0 || l.Column > bincode.MaxAxis) {
			return &InvalidInputError{Reason: ErrOutOfRange, Index: i, Location: l}
		}
		if i == 0 {
			continue
		}
		prev := locs[i-1]
		switch {
		case l.Row < prev.Row, l.Row == prev.Row && l.Column < prev.Column:
			return &InvalidInputError{Reason: ErrUnsorted, Index: i, Location: l}
		case l.Row == prev.Row && l.Column == prev.Column && !g.IsShelf(l.Row):
			return &InvalidInputError{Reason: ErrDuplicatePosition, Index: i, Location: l}
		}
	}
	return nil
}

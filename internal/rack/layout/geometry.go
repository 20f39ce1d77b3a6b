package layout

import (
	"errors"
	"fmt"
)

// Geometry describes a rack: a Columns x Rows grid of bins (both 1-based)
// framed by two overflow shelves that are addressed by reserved row numbers.
type Geometry struct {
	Columns        int
	Rows           int
	TopShelfRow    int
	BottomShelfRow int
}

func DefaultGeometry() Geometry {
	return Geometry{Columns: 6, Rows: 15, TopShelfRow: 0, BottomShelfRow: 16}
}

func (g Geometry) Validate() error {
	if g.Columns <= 0 || g.Rows <= 0 {
		return fmt.Errorf("geometry: columns=%d rows=%d must be positive", g.Columns, g.Rows)
	}
	if g.TopShelfRow >= 1 {
		return fmt.Errorf("geometry: top shelf row %d overlaps the grid", g.TopShelfRow)
	}
	if g.BottomShelfRow <= g.Rows {
		return fmt.Errorf("geometry: bottom shelf row %d overlaps the grid", g.BottomShelfRow)
	}
	return nil
}

// CellCount is the length of every layout built for g.
func (g Geometry) CellCount() int { return g.Columns*g.Rows + 2 }

func (g Geometry) IsShelf(row int) bool {
	return row == g.TopShelfRow || row == g.BottomShelfRow
}

// Contains reports whether (column, row) names a tile of the rack. Any
// column is accepted on a shelf row.
func (g Geometry) Contains(column, row int) bool {
	return g.IsShelf(row) || g.inGrid(column, row)
}

func (g Geometry) inGrid(column, row int) bool {
	return row >= 1 && row <= g.Rows && column >= 1 && column <= g.Columns
}

// Label is the name shown for a bin when a tile is opened.
func (g Geometry) Label(column, row int) string {
	switch row {
	case g.TopShelfRow:
		return "Top shelf"
	case g.BottomShelfRow:
		return "Bottom shelf"
	}
	return fmt.Sprintf("Row %d, Bin %d", row, column)
}

var errBadGeometry = errors.New("layout: invalid geometry")

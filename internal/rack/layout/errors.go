package layout

import (
	"errors"
	"fmt"

	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
)

var (
	ErrEmptyInventory    = errors.New("empty inventory")
	ErrUnsorted          = errors.New("locations not sorted by row, column")
	ErrDuplicatePosition = errors.New("duplicate grid position")
	ErrOutOfRange        = errors.New("location outside rack geometry")
)

// InvalidInputError is returned when the location list cannot be laid out.
// Reason is one of the sentinel errors above.
type InvalidInputError struct {
	Reason   error
	Index    int
	Location model.OccupiedLocation
}

func (e *InvalidInputError) Error() string {
	if errors.Is(e.Reason, ErrEmptyInventory) {
		return "invalid layout input: " + e.Reason.Error()
	}
	return fmt.Sprintf("invalid layout input: %v at index %d (row=%d column=%d)",
		e.Reason, e.Index, e.Location.Row, e.Location.Column)
}

func (e *InvalidInputError) Unwrap() error { return e.Reason }

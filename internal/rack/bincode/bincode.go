// Package bincode packs rack coordinates into the integer bin ids the wine API
// understands, and unpacks them again.
//
// The id layout is store*1000 + column*100 + row. Column and row each get two
// decimal digits; anything at or above 100 spills into the neighbouring field.
// Callers that do not need the wire form should use Key instead.
package bincode

import (
	"errors"
	"fmt"

	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
)

const (
	storeFactor  = 1000
	columnFactor = 100

	// MaxAxis is the largest column or row that survives a round trip.
	MaxAxis = 99
)

var (
	ErrCoordinateOutOfRange = errors.New("bincode: coordinate out of range")
	ErrForeignBin           = errors.New("bincode: bin id does not belong to store")
)

// Key is the unpacked form of a bin id.
type Key struct {
	Store  model.StoreID
	Column int
	Row    int
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d:%d", int(k.Store), k.Column, k.Row)
}

// Encode is the legacy packing formula. It does not validate its input.
func Encode(store model.StoreID, column, row int) model.BinID {
	return model.BinID(int(store)*storeFactor + column*columnFactor + row)
}

// Coder encodes and decodes bin ids for a single store.
type Coder struct {
	store model.StoreID
}

func New(store model.StoreID) Coder { return Coder{store: store} }

func (c Coder) Store() model.StoreID { return c.store }

func (c Coder) Encode(column, row int) model.BinID {
	return Encode(c.store, column, row)
}

// EncodeChecked rejects coordinates that would corrupt a neighbouring field.
func (c Coder) EncodeChecked(column, row int) (model.BinID, error) {
	if column < 0 || column > MaxAxis || row < 0 || row > MaxAxis {
		return 0, fmt.Errorf("%w: column=%d row=%d (must be 0..%d)",
			ErrCoordinateOutOfRange, column, row, MaxAxis)
	}
	return c.Encode(column, row), nil
}

// Decode returns (column, row) for an id produced by this coder. Ids from
// another store decode to meaningless values; use DecodeChecked to catch the
// detectable cases.
func (c Coder) Decode(id model.BinID) (column, row int) {
	rem := int(id) - int(c.store)*storeFactor
	return rem / columnFactor, rem % columnFactor
}

// DecodeChecked reports ErrForeignBin when id lies outside this store's range.
// An id whose column is 10 or more aliases the next store and cannot be told
// apart; that ambiguity is inherent in the packing.
func (c Coder) DecodeChecked(id model.BinID) (column, row int, err error) {
	rem := int(id) - int(c.store)*storeFactor
	if rem < 0 || rem > MaxAxis*columnFactor+MaxAxis {
		return 0, 0, fmt.Errorf("%w: id=%d store=%d", ErrForeignBin, int(id), int(c.store))
	}
	return rem / columnFactor, rem % columnFactor, nil
}

func (c Coder) Key(id model.BinID) Key {
	col, row := c.Decode(id)
	return Key{Store: c.store, Column: col, Row: row}
}

func (k Key) BinID() model.BinID { return Encode(k.Store, k.Column, k.Row) }

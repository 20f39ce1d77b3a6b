// Package invalidation defines the bottle-change events that tell the rack
// service which cached views went stale.
package invalidation

import (
	"errors"
	"fmt"
	"time"

	"github.com/mohammed-shakir/cellar-rack/internal/rack/bincode"
)

const (
	OpAdd     = "add"
	OpConsume = "consume"
	OpMove    = "move"
	OpUpdate  = "update"
)

// Position is a bin of a store.
type Position struct {
	StoreID int `json:"store_id"`
	BinX    int `json:"bin_x"`
	BinY    int `json:"bin_y"`
}

// Event reports that a bottle changed at Position: where it is now, or where
// it was when consumed. A move also names the bin it came From. Seq orders
// events of the same bottle; zero disables dedupe.
type Event struct {
	Position

	Version  int       `json:"version"`
	Op       string    `json:"op"`
	From     *Position `json:"from,omitempty"`
	BottleID int       `json:"bottle_id,omitempty"`
	Seq      uint64    `json:"seq,omitempty"`
	TS       time.Time `json:"ts"`
	Source   string    `json:"source,omitempty"`
}

func (p Position) validate() error {
	if p.StoreID < 0 {
		return fmt.Errorf("store_id must be >= 0")
	}
	if p.BinX < 0 || p.BinX > bincode.MaxAxis || p.BinY < 0 || p.BinY > bincode.MaxAxis {
		return fmt.Errorf("bin (%d,%d) out of range 0..%d", p.BinX, p.BinY, bincode.MaxAxis)
	}
	return nil
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpAdd, OpConsume, OpMove, OpUpdate:
	default:
		return fmt.Errorf("op must be add|consume|move|update")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if err := e.Position.validate(); err != nil {
		return err
	}
	if e.Op == OpMove && e.From == nil {
		return errors.New("move requires from")
	}
	if e.From != nil {
		if err := e.From.validate(); err != nil {
			return fmt.Errorf("from: %w", err)
		}
	}
	return nil
}

// Positions lists every bin the event touched.
func (e Event) Positions() []Position {
	if e.From == nil || *e.From == e.Position {
		return []Position{e.Position}
	}
	return []Position{*e.From, e.Position}
}

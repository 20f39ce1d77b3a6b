// Package inventory serves rack views built from the remote wine API: the
// dense layout of a store, the bottles in one bin and printable bin labels.
// Built views are cached and dropped again when a bottle moves.
package inventory

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mohammed-shakir/cellar-rack/internal/cache"
	"github.com/mohammed-shakir/cellar-rack/internal/cache/keys"
	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
	"github.com/mohammed-shakir/cellar-rack/internal/core/observability"
	"github.com/mohammed-shakir/cellar-rack/internal/invalidation"
	"github.com/mohammed-shakir/cellar-rack/internal/labels"
	"github.com/mohammed-shakir/cellar-rack/internal/logger"
	"github.com/mohammed-shakir/cellar-rack/internal/rack/bincode"
	"github.com/mohammed-shakir/cellar-rack/internal/rack/layout"
)

var ErrUnknownBin = errors.New("inventory: bin is not part of the rack")

// Upstream is the subset of the wine API the service reads and writes.
type Upstream interface {
	StoreInventory(ctx context.Context, store model.StoreID) ([]model.OccupiedLocation, error)
	BottlesByBin(ctx context.Context, bin model.BinID) ([]model.StoreBottle, error)
	AddBottle(ctx context.Context, req model.NewBottleRequest) (model.Bottle, error)
	PatchBottle(ctx context.Context, id int, req model.PatchBottleRequest) (model.Bottle, error)
	ConsumeBottle(ctx context.Context, id int) (model.Bottle, error)
}

// EventPublisher tells other replicas that a bin changed.
type EventPublisher interface {
	Publish(ctx context.Context, ev invalidation.Event) error
}

type Config struct {
	LayoutTTL      time.Duration
	BinTTL         time.Duration
	KeyPrefix      string
	Sheet          labels.SheetConfig
	Publisher      EventPublisher
	PublishTimeout time.Duration
}

type Service struct {
	log     *slog.Logger
	api     Upstream
	builder *layout.Builder
	cache   cache.Interface
	keys    keys.Space
	cfg     Config
}

func New(log *slog.Logger, api Upstream, builder *layout.Builder, c cache.Interface, cfg Config) *Service {
	if log == nil {
		log = slog.Default()
	}
	if c == nil {
		c = cache.Noop{}
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return &Service{
		log:     log,
		api:     api,
		builder: builder,
		cache:   c,
		keys:    keys.NewSpace(cfg.KeyPrefix),
		cfg:     cfg,
	}
}

func (s *Service) Geometry() layout.Geometry { return s.builder.Geometry() }

// Layout is the JSON document served for a store.
type Layout struct {
	Store   model.StoreID       `json:"store"`
	Cells   []model.DisplayCell `json:"cells"`
	Summary layout.Summary      `json:"summary"`
}

// Rendered is a serialized view together with its validator.
type Rendered struct {
	Body []byte
	ETag string
}

func (s *Service) Layout(ctx context.Context, store model.StoreID) (Rendered, error) {
	ctx = logger.WithStore(ctx, int(store))
	key := s.keys.Layout(store)
	gen := s.cache.Generation(key)
	if body, ok := s.cache.Get(ctx, key); ok {
		return Rendered{Body: body, ETag: keys.ETag(body)}, nil
	}

	locs, err := s.api.StoreInventory(ctx, store)
	if err != nil {
		observability.ObserveLayoutBuild("upstream_error")
		return Rendered{}, fmt.Errorf("store inventory: %w", err)
	}
	cells, err := s.builder.Build(store, locs)
	if err != nil {
		observability.ObserveLayoutBuild("invalid")
		s.log.WarnContext(ctx, "layout rejected", "locations", len(locs), "err", err)
		return Rendered{}, err
	}
	observability.ObserveLayoutBuild("ok")

	doc := Layout{Store: store, Cells: cells, Summary: layout.Summarize(cells)}
	observability.SetRackBottles(int(store), doc.Summary.GridBottles, doc.Summary.ShelfBottles)

	body, err := json.Marshal(doc)
	if err != nil {
		return Rendered{}, fmt.Errorf("marshal layout: %w", err)
	}
	s.cache.Fill(ctx, key, body, s.cfg.LayoutTTL, gen)
	s.log.DebugContext(ctx, "layout built",
		"cells", len(cells), "bottles", doc.Summary.TotalBottles)
	return Rendered{Body: body, ETag: keys.ETag(body)}, nil
}

// BinContents is the drill-down for one tile.
type BinContents struct {
	BinID   model.BinID         `json:"binId"`
	Column  int                 `json:"column"`
	Row     int                 `json:"row"`
	Label   string              `json:"label"`
	Bottles []model.StoreBottle `json:"bottles"`
}

// resolve maps a bin id of store back to rack coordinates.
func (s *Service) resolve(store model.StoreID, id model.BinID) (bincode.Key, error) {
	col, row, err := bincode.New(store).DecodeChecked(id)
	if err != nil {
		return bincode.Key{}, err
	}
	if !s.Geometry().Contains(col, row) {
		return bincode.Key{}, fmt.Errorf("%w: bin %d decodes to column=%d row=%d", ErrUnknownBin, int(id), col, row)
	}
	return bincode.Key{Store: store, Column: col, Row: row}, nil
}

func (s *Service) Bin(ctx context.Context, store model.StoreID, id model.BinID) (BinContents, error) {
	ctx = logger.WithStore(ctx, int(store))
	k, err := s.resolve(store, id)
	if err != nil {
		return BinContents{}, err
	}

	key := s.keys.Bin(k)
	gen := s.cache.Generation(key)
	if body, ok := s.cache.Get(ctx, key); ok {
		var bc BinContents
		if err := json.Unmarshal(body, &bc); err == nil {
			return bc, nil
		}
		s.log.WarnContext(ctx, "dropping undecodable bin entry", "key", key)
	}

	bottles, err := s.api.BottlesByBin(ctx, id)
	if err != nil {
		return BinContents{}, fmt.Errorf("bottles in bin %d: %w", int(id), err)
	}
	sortBottles(bottles)
	if bottles == nil {
		bottles = []model.StoreBottle{}
	}

	bc := BinContents{
		BinID:   id,
		Column:  k.Column,
		Row:     k.Row,
		Label:   s.Geometry().Label(k.Column, k.Row),
		Bottles: bottles,
	}
	if body, err := json.Marshal(bc); err == nil {
		s.cache.Fill(ctx, key, body, s.cfg.BinTTL, gen)
	}
	return bc, nil
}

// sortBottles orders front to back, then left to right.
func sortBottles(bs []model.StoreBottle) {
	slices.SortStableFunc(bs, func(a, b model.StoreBottle) int {
		return cmp.Or(cmp.Compare(a.Depth, b.Depth), cmp.Compare(a.BinX, b.BinX))
	})
}

// LabelPNG renders the QR label of one bin.
func (s *Service) LabelPNG(store model.StoreID, id model.BinID) ([]byte, error) {
	k, err := s.resolve(store, id)
	if err != nil {
		return nil, err
	}
	return labels.PNG(s.label(k), labels.DefaultSize)
}

// LabelSheet renders a printable sheet with one label per tile, in layout
// order.
func (s *Service) LabelSheet(store model.StoreID) ([]byte, error) {
	g := s.Geometry()
	ls := make([]labels.Label, 0, g.CellCount())
	ls = append(ls, s.label(bincode.Key{Store: store, Row: g.TopShelfRow}))
	for row := 1; row <= g.Rows; row++ {
		for col := 1; col <= g.Columns; col++ {
			ls = append(ls, s.label(bincode.Key{Store: store, Column: col, Row: row}))
		}
	}
	ls = append(ls, s.label(bincode.Key{Store: store, Row: g.BottomShelfRow}))
	return labels.Sheet(s.cfg.Sheet, ls)
}

func (s *Service) label(k bincode.Key) labels.Label {
	return labels.Label{Store: k.Store, Bin: k.BinID(), Text: s.Geometry().Label(k.Column, k.Row)}
}

// Consume marks a bottle as drunk upstream and drops every cached view that
// showed it, here and, through the publisher, on other replicas. A failed
// invalidation is logged; the entries then age out.
func (s *Service) Consume(ctx context.Context, store model.StoreID, bottleID int) (model.Bottle, error) {
	ctx = logger.WithStore(ctx, int(store))
	b, err := s.api.ConsumeBottle(ctx, bottleID)
	if err != nil {
		return model.Bottle{}, fmt.Errorf("consume bottle %d: %w", bottleID, err)
	}
	s.changed(ctx, invalidation.OpConsume, bottleID, nil, positionOf(store, b))
	return b, nil
}

// AddBottle stores a new bottle in store. A zero StorageID means store.
func (s *Service) AddBottle(ctx context.Context, store model.StoreID, req model.NewBottleRequest) (model.Bottle, error) {
	ctx = logger.WithStore(ctx, int(store))
	if req.StorageID == 0 {
		req.StorageID = int(store)
	}
	if err := s.checkPosition(req.BinX, req.BinY); err != nil {
		return model.Bottle{}, err
	}
	b, err := s.api.AddBottle(ctx, req)
	if err != nil {
		return model.Bottle{}, fmt.Errorf("add bottle: %w", err)
	}
	s.changed(ctx, invalidation.OpAdd, b.ID, nil, positionOf(model.StoreID(req.StorageID), b))
	return b, nil
}

// PatchBottle updates a bottle currently stored in bin from of store. When
// the patch moves it, both the old and the new bin are invalidated.
func (s *Service) PatchBottle(
	ctx context.Context,
	store model.StoreID,
	from model.BinID,
	bottleID int,
	req model.PatchBottleRequest,
) (model.Bottle, error) {
	ctx = logger.WithStore(ctx, int(store))
	k, err := s.resolve(store, from)
	if err != nil {
		return model.Bottle{}, err
	}
	if req.BinX != nil || req.BinY != nil {
		x, y := k.Column, k.Row
		if req.BinX != nil {
			x = *req.BinX
		}
		if req.BinY != nil {
			y = *req.BinY
		}
		if err := s.checkPosition(x, y); err != nil {
			return model.Bottle{}, err
		}
	}

	b, err := s.api.PatchBottle(ctx, bottleID, req)
	if err != nil {
		return model.Bottle{}, fmt.Errorf("patch bottle %d: %w", bottleID, err)
	}

	old := invalidation.Position{StoreID: int(store), BinX: k.Column, BinY: k.Row}
	now := positionOf(store, b)
	if req.Consumed != nil && *req.Consumed {
		s.changed(ctx, invalidation.OpConsume, bottleID, nil, old)
		return b, nil
	}
	if now != old {
		s.changed(ctx, invalidation.OpMove, bottleID, &old, now)
		return b, nil
	}
	s.changed(ctx, invalidation.OpUpdate, bottleID, nil, now)
	return b, nil
}

func (s *Service) checkPosition(column, row int) error {
	if !s.Geometry().Contains(column, row) {
		return fmt.Errorf("%w: column=%d row=%d is not a tile of the rack",
			bincode.ErrCoordinateOutOfRange, column, row)
	}
	return nil
}

// positionOf is where b sits; bottles that report no storage are in store.
func positionOf(store model.StoreID, b model.Bottle) invalidation.Position {
	if b.StorageID != 0 {
		store = model.StoreID(b.StorageID)
	}
	return invalidation.Position{StoreID: int(store), BinX: b.BinX, BinY: b.BinY}
}

// changed drops the views of every touched bin and tells the other replicas.
func (s *Service) changed(ctx context.Context, op string, bottleID int, from *invalidation.Position, at invalidation.Position) {
	ev := invalidation.Event{
		Version:  1,
		Op:       op,
		Position: at,
		From:     from,
		BottleID: bottleID,
		TS:       time.Now().UTC(),
		Source:   "cellar-rack",
	}
	for _, p := range ev.Positions() {
		if err := s.Invalidate(ctx, model.StoreID(p.StoreID), p.BinX, p.BinY); err != nil {
			s.log.WarnContext(ctx, "invalidate after change", "op", op, "bottle", bottleID, "err", err)
		}
	}
	if s.cfg.Publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()
	if err := s.cfg.Publisher.Publish(pctx, ev); err != nil {
		s.log.WarnContext(ctx, "publish change event", "op", op, "bottle", bottleID, "err", err)
	}
}

// Invalidate drops the store layout and the cached contents of the bin at
// (column, row). Shelf bottles also drop the pooled shelf tile.
func (s *Service) Invalidate(ctx context.Context, store model.StoreID, column, row int) error {
	ks := []string{
		s.keys.Layout(store),
		s.keys.Bin(bincode.Key{Store: store, Column: column, Row: row}),
	}
	if s.Geometry().IsShelf(row) && column != 0 {
		ks = append(ks, s.keys.Bin(bincode.Key{Store: store, Row: row}))
	}
	return s.cache.Del(ctx, ks...)
}

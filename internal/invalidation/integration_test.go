package invalidation_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/cellar-rack/internal/cache"
	"github.com/mohammed-shakir/cellar-rack/internal/cache/keys"
	"github.com/mohammed-shakir/cellar-rack/internal/cache/redisstore"
	"github.com/mohammed-shakir/cellar-rack/internal/core/config"
	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
	"github.com/mohammed-shakir/cellar-rack/internal/inventory"
	"github.com/mohammed-shakir/cellar-rack/internal/invalidation"
	"github.com/mohammed-shakir/cellar-rack/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/cellar-rack/internal/rack/bincode"
	"github.com/mohammed-shakir/cellar-rack/internal/rack/layout"
)

type api struct{ inv, bins int }

func (a *api) StoreInventory(context.Context, model.StoreID) ([]model.OccupiedLocation, error) {
	a.inv++
	return []model.OccupiedLocation{{Column: 3, Row: 7, Count: 1}}, nil
}

func (a *api) BottlesByBin(context.Context, model.BinID) ([]model.StoreBottle, error) {
	a.bins++
	return []model.StoreBottle{{BottleID: 42, BinX: 3, BinY: 7}}, nil
}

func (a *api) AddBottle(context.Context, model.NewBottleRequest) (model.Bottle, error) {
	return model.Bottle{}, nil
}

func (a *api) PatchBottle(context.Context, int, model.PatchBottleRequest) (model.Bottle, error) {
	return model.Bottle{}, nil
}

func (a *api) ConsumeBottle(context.Context, int) (model.Bottle, error) {
	return model.Bottle{}, nil
}

func TestConsumerDropsRedisEntries(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx := context.Background()
	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := cache.New(log, rc, 16, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := layout.New()
	up := &api{}
	svc := inventory.New(log, up, b, c, inventory.Config{LayoutTTL: time.Minute, BinTTL: time.Minute})

	if _, err := svc.Layout(ctx, 5); err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if _, err := svc.Bin(ctx, 5, bincode.Encode(5, 3, 7)); err != nil {
		t.Fatalf("Bin: %v", err)
	}

	ks := keys.NewSpace("")
	layoutKey := ks.Layout(5)
	binKey := ks.Bin(bincode.Key{Store: 5, Column: 3, Row: 7})
	if !mr.Exists(layoutKey) || !mr.Exists(binKey) {
		t.Fatalf("expected both entries in redis, have %v", mr.Keys())
	}

	cons := kafkaconsumer.New(kafkaconsumer.FromConfig(config.InvalidationCfg{Topic: "t", GroupID: "g"}), log, svc)
	ev, _ := json.Marshal(invalidation.Event{
		Version:  1,
		Op:       invalidation.OpConsume,
		Position: invalidation.Position{StoreID: 5, BinX: 3, BinY: 7},
		BottleID: 42,
		TS:       time.Now().UTC(),
	})
	if err := cons.ProcessOne(ctx, &sarama.ConsumerMessage{Topic: "t", Value: ev}); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	if mr.Exists(layoutKey) || mr.Exists(binKey) {
		t.Fatalf("entries survived invalidation: %v", mr.Keys())
	}

	if _, err := svc.Layout(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if up.inv != 2 {
		t.Fatalf("layout not rebuilt after invalidation (upstream calls=%d)", up.inv)
	}
}

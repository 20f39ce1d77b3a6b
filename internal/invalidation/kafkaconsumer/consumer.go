// Package kafkaconsumer applies bottle-change events from kafka to the rack
// caches.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
	obs "github.com/mohammed-shakir/cellar-rack/internal/core/observability"
	"github.com/mohammed-shakir/cellar-rack/internal/invalidation"
	mylog "github.com/mohammed-shakir/cellar-rack/internal/logger"
)

var ErrNotAssigned = errors.New("kafkaconsumer: no active group session")

// Invalidator drops the cached views of one bin, satisfied by
// *inventory.Service.
type Invalidator interface {
	Invalidate(ctx context.Context, store model.StoreID, column, row int) error
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	zlog   *zerolog.Logger
	inv    Invalidator
	ver    *versionDedupe

	mu     sync.RWMutex
	active bool
	parts  []int32
}

type Option func(*Consumer)

// WithZerolog sends per-event records to zl instead of discarding them.
func WithZerolog(zl *zerolog.Logger) Option {
	return func(c *Consumer) { c.zlog = zl }
}

func New(cfg Config, logger *slog.Logger, inv Invalidator, opts ...Option) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	nop := zerolog.Nop()
	c := &Consumer{
		cfg:    cfg,
		logger: logger,
		zlog:   &nop,
		inv:    inv,
		ver:    newVersionDedupe(cfg.DedupeSize),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start consumes until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.inv == nil {
		return errors.New("kafkaconsumer: missing invalidator")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	go func() {
		for err := range group.Errors() {
			c.logger.Error("kafka group error", "err", err)
		}
	}()

	handler := &groupHandler{process: c.ProcessOne, setup: c.assigned, cleanup: c.revoked}

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			c.logger.Error("consumer error", "err", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		}
	}
}

func (c *Consumer) assigned(s sarama.ConsumerGroupSession) {
	var parts []int32
	for _, ps := range s.Claims() {
		parts = append(parts, ps...)
	}
	slices.Sort(parts)
	c.mu.Lock()
	c.active, c.parts = true, parts
	c.mu.Unlock()
}

func (c *Consumer) revoked(sarama.ConsumerGroupSession) {
	c.mu.Lock()
	c.active, c.parts = false, nil
	c.mu.Unlock()
}

// Partitions returns the partitions owned by the current session.
func (c *Consumer) Partitions() []int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.parts)
}

// Ping reports ErrNotAssigned until the group session is established.
func (c *Consumer) Ping(context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.active {
		return ErrNotAssigned
	}
	return nil
}

// ProcessOne applies one event. Malformed events are logged and skipped;
// only a failed invalidation is returned so the message is retried.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx = mylog.WithComponent(ctx, "kafka_consumer")
	zl := mylog.FromContext(ctx, c.zlog)

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.ObserveInvalidation("decode", err)
		zl.Error().Err(err).
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.ObserveInvalidation("invalid", err)
		zl.Warn().Err(err).
			Str("op", ev.Op).
			Int64("offset", msg.Offset).
			Msg("skipping invalid event")
		return nil
	}
	if !c.ver.shouldApply(ev.BottleID, ev.Seq) {
		c.logger.DebugContext(ctx, "stale event skipped", "bottle", ev.BottleID, "seq", ev.Seq)
		return nil
	}

	ps := ev.Positions()
	for _, p := range ps {
		if err := c.inv.Invalidate(ctx, model.StoreID(p.StoreID), p.BinX, p.BinY); err != nil {
			obs.ObserveInvalidation(ev.Op, err)
			zl.Error().Err(err).
				Str("kind", "cache_del").
				Int("store_id", p.StoreID).
				Int32("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("kafka error")
			return fmt.Errorf("invalidate store %d bin (%d,%d): %w", p.StoreID, p.BinX, p.BinY, err)
		}
	}

	obs.ObserveInvalidation(ev.Op, nil)
	zl.Info().
		Str("event", "invalidation").
		Str("op", ev.Op).
		Int("bottle_id", ev.BottleID).
		Int("bins", len(ps)).
		Msg("invalidated bins")
	return nil
}

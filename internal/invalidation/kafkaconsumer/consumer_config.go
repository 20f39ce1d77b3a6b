package kafkaconsumer

import (
	"time"

	"github.com/mohammed-shakir/cellar-rack/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
}

// FromConfig fills the consumer settings from the service config, with the
// group timings fixed.
func FromConfig(c config.InvalidationCfg) Config {
	brokers := c.Brokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	return Config{
		Brokers:             brokers,
		Topic:               c.Topic,
		GroupID:             c.GroupID,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: false,
		DedupeSize:          4096,
	}
}

// Package kafkapublisher emits bottle-change events so every replica can
// drop its cached views.
package kafkapublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/cellar-rack/internal/core/observability"
	"github.com/mohammed-shakir/cellar-rack/internal/invalidation"
)

type Publisher struct {
	prod  sarama.SyncProducer
	topic string
}

// Dial connects a synchronous producer to brokers.
func Dial(brokers []string, topic string) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("producer create: %w", err)
	}
	return New(prod, topic), nil
}

func New(prod sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{prod: prod, topic: topic}
}

// Publish sends ev keyed by store so events of one rack stay ordered. It
// returns when the broker acknowledges or ctx is done, whichever is first;
// an abandoned send still completes in the background and may be delivered.
func (p *Publisher) Publish(ctx context.Context, ev invalidation.Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("publish: encode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.Itoa(ev.StoreID)),
		Value: sarama.ByteEncoder(b),
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := p.prod.SendMessage(msg)
		done <- err
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	obs.ObserveInvalidation("publish", err)
	if err != nil {
		return fmt.Errorf("publish: send: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error { return p.prod.Close() }

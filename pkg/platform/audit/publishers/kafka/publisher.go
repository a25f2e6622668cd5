// Package kafka publishes audit events to a Kafka topic so downstream
// compliance consumers can replay the ledger history independently of this
// service's storage.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "attestry/pkg/platform/audit"
)

// Publisher emits audit events as JSON records keyed by authority address,
// so per-authority ordering survives partitioning.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// New constructs a Kafka publisher for the given brokers and topic.
func New(brokers []string, topic string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Authority.String()),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes and shuts down the underlying client.
func (p *Publisher) Close() {
	p.client.Close()
}

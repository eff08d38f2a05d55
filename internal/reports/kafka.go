package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"ordex/internal/domain"
)

// Publisher ships order reports to a Kafka topic, keyed by order ID so
// all reports of one order land on the same partition.
type Publisher struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// NewPublisher creates a Kafka report publisher.
func NewPublisher(brokers []string, topic string, log *slog.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 100 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		log: log,
	}
}

// PublishOrder publishes the order report followed by one message per
// retired leg.
func (p *Publisher) PublishOrder(ctx context.Context, o *domain.ParentOrder, supplementary map[string]any) error {
	report := FromOrder(o, supplementary)

	msgs := make([]kafka.Message, 0, 1+len(o.History))

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal order report: %w", err)
	}
	msgs = append(msgs, kafka.Message{
		Key:   []byte(o.ID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte("order")},
		},
	})

	for _, leg := range FromLegs(o) {
		body, err := json.Marshal(leg)
		if err != nil {
			return fmt.Errorf("marshal leg report: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(o.ID),
			Value: body,
			Headers: []kafka.Header{
				{Key: "kind", Value: []byte("leg")},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish order %s: %w", o.ID, err)
	}

	p.log.Debug("order report published",
		slog.String("order", o.ID),
		slog.Int("messages", len(msgs)))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

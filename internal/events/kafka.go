package events

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/congo-pay/accountledger/internal/ledger"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes events to a Kafka topic keyed by account number, so
// events of one account stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher wraps a configured writer.
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish writes the event as a single message.
func (p *KafkaPublisher) Publish(ctx context.Context, e ledger.Event) error {
	payload, body, err := encode(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(payload.AccountNumber),
		Value: body,
		Time:  payload.OccurredAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(payload.Kind)},
			{Key: "event-id", Value: []byte(payload.EventID)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Package events publishes alert lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pricealerts/config"
	"pricealerts/internal/models"

	kafkaGo "github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

type KafkaPublisher struct {
	w MessageWriter
}

// NewKafkaPublisher writes to cfg.Topic, keyed by alert ID so one alert's
// events stay ordered on a partition.
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return NewPublisher(&kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkaGo.Hash{},
		RequiredAcks:           kafkaGo.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	})
}

func NewPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...models.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkaGo.Message, 0, len(events))
	for _, ev := range events {
		m, err := ToMessage(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d alert events: %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// ToMessage encodes ev as JSON with its kind in a header.
func ToMessage(ev models.AlertEvent) (kafkaGo.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafkaGo.Message{}, fmt.Errorf("encode alert event: %w", err)
	}
	return kafkaGo.Message{
		Key:     []byte(ev.AlertID),
		Value:   value,
		Time:    ev.CreatedAt,
		Headers: []kafkaGo.Header{{Key: "kind", Value: []byte(ev.Kind)}},
	}, nil
}

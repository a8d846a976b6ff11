// Package crm streams deal events to the CRM pipeline.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Deal kinds
const (
	DealBooking    = "booking"
	DealOrder      = "order"
	DealEnrollment = "enrollment"
)

// DealEvent is one potential sale for the CRM
type DealEvent struct {
	Kind       string    `json:"kind"`
	ClientID   string    `json:"client_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Title      string    `json:"title"`
	ValueCents int64     `json:"value_cents"`
	Reference  string    `json:"reference"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	PublishDeal(ctx context.Context, deal DealEvent) error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})
	return &KafkaPublisher{writer: writer}
}

// PublishDeal keys the message by client so one client's deals stay ordered
func (p *KafkaPublisher) PublishDeal(ctx context.Context, deal DealEvent) error {
	msg, err := encodeDeal(deal)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish deal: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeDeal(deal DealEvent) (kafka.Message, error) {
	if deal.OccurredAt.IsZero() {
		deal.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(deal)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode deal: %w", err)
	}
	return kafka.Message{
		Key:   []byte(deal.ClientID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(deal.Kind)},
		},
	}, nil
}

// LogPublisher only logs deals; used when no brokers are configured
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishDeal(_ context.Context, deal DealEvent) error {
	p.logger.Info("CRM deal (not published)",
		zap.String("kind", deal.Kind),
		zap.String("client_id", deal.ClientID),
		zap.String("reference", deal.Reference),
		zap.Int64("value_cents", deal.ValueCents),
	)
	return nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxledger/internal/txlog"
)

const (
	// KindFunded is emitted after a funding commits.
	KindFunded = "ledger.funded"
	// KindConverted is emitted after a conversion commits.
	KindConverted = "ledger.converted"
	// KindTraded is emitted after a trade commits.
	KindTraded = "ledger.traded"
)

// Event describes a committed ledger mutation.
type Event struct {
	Kind          string              `json:"kind"`
	TransactionID string              `json:"transactionId"`
	UserID        string              `json:"userId"`
	Type          txlog.Type          `json:"type"`
	FromCurrency  string              `json:"fromCurrency,omitempty"`
	ToCurrency    string              `json:"toCurrency,omitempty"`
	FromAmount    decimal.NullDecimal `json:"fromAmount"`
	ToAmount      decimal.NullDecimal `json:"toAmount"`
	ExchangeRate  decimal.NullDecimal `json:"exchangeRate"`
	OccurredAt    time.Time           `json:"occurredAt"`
}

// FromTransaction derives the event for a committed transaction.
func FromTransaction(t txlog.Transaction) Event {
	kind := KindFunded
	switch t.Type {
	case txlog.TypeConversion:
		kind = KindConverted
	case txlog.TypeTrade:
		kind = KindTraded
	}
	return Event{
		Kind:          kind,
		TransactionID: t.ID,
		UserID:        t.UserID,
		Type:          t.Type,
		FromCurrency:  t.FromCurrency,
		ToCurrency:    t.ToCurrency,
		FromAmount:    t.FromAmount,
		ToAmount:      t.ToAmount,
		ExchangeRate:  t.ExchangeRate,
		OccurredAt:    t.CreatedAt,
	}
}

// Publisher delivers ledger events to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LoggerPublisher writes events to the structured logger.
type LoggerPublisher struct {
	logger *slog.Logger
}

// NewLoggerPublisher constructs a logging publisher.
func NewLoggerPublisher(logger *slog.Logger) *LoggerPublisher {
	return &LoggerPublisher{logger: logger}
}

// Publish writes the event to the logger.
func (p *LoggerPublisher) Publish(_ context.Context, event Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("ledger event",
		"kind", event.Kind,
		"transaction_id", event.TransactionID,
		"user_id", event.UserID,
	)
	return nil
}

// KafkaPublisher sends events to a Kafka topic keyed by user id so a user's
// events stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher builds a Kafka-backed publisher.
func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish encodes event as JSON and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.UserID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(event.Kind)},
		},
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send event %s: %w", event.TransactionID, err)
	}
	return nil
}

// Close releases the underlying producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

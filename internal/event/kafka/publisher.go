// Package kafka publishes payment lifecycle events to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/yourorg/payment-lifecycle/internal/payment"
)

const (
	EventTypeOperationSucceeded = "payment.operation.succeeded"
	eventVersion                = 1
)

// OperationSucceededEvent is the payload published when an operation reaches
// its success status.
type OperationSucceededEvent struct {
	EventID      string            `json:"event_id"`
	EventType    string            `json:"event_type"`
	EventVersion int               `json:"event_version"`
	OccurredAt   time.Time         `json:"occurred_at"`
	PaymentID    string            `json:"payment_id"`
	OwnerID      string            `json:"owner_id"`
	Gateway      string            `json:"gateway"`
	Operation    payment.Operation `json:"operation"`
	Status       payment.Status    `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Reference    string            `json:"reference,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends success events to a topic. It implements
// orchestrator.PaymentObserver.
type Publisher struct {
	logger *zap.Logger
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewPublisher creates a Publisher writing to topic on brokers.
func NewPublisher(logger *zap.Logger, brokers []string, topic string) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newPublisher(logger, writer, topic)
}

func newPublisher(logger *zap.Logger, w messageWriter, topic string) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger, writer: w, topic: topic, now: time.Now}
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// OnPaymentSuccess publishes an OperationSucceededEvent keyed by payment ID,
// so events of one payment stay ordered within a partition.
func (p *Publisher) OnPaymentSuccess(ctx context.Context, rec *payment.Record, op payment.Operation) error {
	event := newOperationSucceededEvent(rec, op, p.now().UTC())

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.EventType, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
	if err != nil {
		p.logger.Error("failed to publish payment event",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("payment_id", rec.ID),
			zap.String("operation", string(op)),
		)
		return fmt.Errorf("publish %s event: %w", event.EventType, err)
	}

	p.logger.Info("payment event published",
		zap.String("topic", p.topic),
		zap.String("event_id", event.EventID),
		zap.String("payment_id", rec.ID),
		zap.String("operation", string(op)),
	)
	return nil
}

func newOperationSucceededEvent(rec *payment.Record, op payment.Operation, at time.Time) OperationSucceededEvent {
	return OperationSucceededEvent{
		EventID:      uuid.NewString(),
		EventType:    EventTypeOperationSucceeded,
		EventVersion: eventVersion,
		OccurredAt:   at,
		PaymentID:    rec.ID,
		OwnerID:      rec.OwnerID,
		Gateway:      rec.Gateway,
		Operation:    op,
		Status:       rec.Status,
		Amount:       rec.Amount,
		Currency:     rec.Currency,
		Reference:    rec.LatestReference(),
	}
}

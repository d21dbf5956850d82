// Package events streams committed ledger movements to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/models"
)

// LedgerEvent is the wire form of one ledger row.
type LedgerEvent struct {
	TransactionID uuid.UUID                `json:"transaction_id"`
	Reference     string                   `json:"reference"`
	UserID        uuid.UUID                `json:"user_id"`
	Type          models.TransactionType   `json:"type"`
	Balance       models.Balance           `json:"balance"`
	Direction     models.Direction         `json:"direction"`
	Status        models.TransactionStatus `json:"status"`
	Amount        decimal.Decimal          `json:"amount"`
	BalanceAfter  decimal.Decimal          `json:"balance_after"`
	OccurredAt    time.Time                `json:"occurred_at"`
}

// FromTransaction builds the event for t at the given time.
func FromTransaction(t *models.Transaction, at time.Time) LedgerEvent {
	return LedgerEvent{
		TransactionID: t.ID,
		Reference:     t.Reference,
		UserID:        t.UserID,
		Type:          t.Type,
		Balance:       t.Balance,
		Direction:     t.Direction,
		Status:        t.Status,
		Amount:        t.Amount,
		BalanceAfter:  t.BalanceAfter,
		OccurredAt:    at,
	}
}

// Publisher delivers ledger events.
type Publisher interface {
	Publish(ctx context.Context, ev LedgerEvent) error
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes events to a topic keyed by user, so one user's
// movements stay ordered within a partition.
type KafkaPublisher struct {
	w MessageWriter
}

func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// NewKafkaWriter returns a synchronous writer for the ledger topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev LedgerEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.UserID.String()),
		Value: payload,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish ledger event %s: %w", ev.Reference, err)
	}
	return nil
}

// LogPublisher logs events. Used when no broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, ev LedgerEvent) error {
	p.log.Info("ledger event",
		"reference", ev.Reference,
		"user_id", ev.UserID,
		"type", ev.Type,
		"direction", ev.Direction,
		"amount", ev.Amount.String(),
		"status", ev.Status,
	)
	return nil
}

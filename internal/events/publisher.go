// Package events publishes ledger changes to other services.
package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Event types double as kafka topics.
const (
	ReceiptCreated         = "ledger.receipt.created"
	ReceiptDeleted         = "ledger.receipt.deleted"
	ReceiptPaymentApplied  = "ledger.receipt.payment_applied"
	TransactionCreated     = "ledger.transaction.created"
	TransactionPaymentMade = "ledger.transaction.payment_made"
	ReconciliationFinished = "ledger.reconciliation.completed"
)

type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func New(eventType, key string, payload any) Event {
	return Event{Type: eventType, Key: key, OccurredAt: time.Now().UTC(), Payload: payload}
}

// Publisher delivers events. Publish failures never undo a committed ledger write;
// callers log them and move on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	p.log.Info("ledger event",
		zap.String("type", ev.Type),
		zap.String("key", ev.Key),
		zap.ByteString("payload", data),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

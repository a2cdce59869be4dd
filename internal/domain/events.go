package domain

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	EventTransactionCreated   = "transaction.created"
	EventBookingStatusChanged = "booking.status_changed"
	EventPaymentStatusChanged = "payment.status_changed"
)

type StatusChange struct {
	ID   uuid.UUID `json:"id"`
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// NewOutboxEvent builds a NEW outbox record with a JSON payload.
func NewOutboxEvent(aggregateType string, aggregateID uuid.UUID, eventType string, payload interface{}) (OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxEvent{}, errors.Wrapf(err, "marshal %s payload", eventType)
	}
	id := uuid.New()
	return OutboxEvent{
		ID:            id,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		CreatedAt:     time.Now().UTC(),
		Status:        "NEW",
		DedupeKey:     id.String(),
	}, nil
}

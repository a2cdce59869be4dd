// Package rabbit publishes lifecycle events and guest notices to RabbitMQ and
// consumes payment gateway notifications from it.
package rabbit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
)

const EventsExchange = "stays.events"

type Publisher struct {
	ch         *amqp.Channel
	maxRetries uint64
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch, maxRetries: 3}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	return p.ch.PublishWithContext(ctx, EventsExchange, key, false, false, msg)
}

// PublishEvent relays an outbox event, routed by its event type. The dedupe
// key travels as the message id so consumers can drop redeliveries.
func (p *Publisher) PublishEvent(ctx context.Context, e domain.OutboxEvent) error {
	msg := amqp.Publishing{
		MessageId:    e.DedupeKey,
		Type:         e.EventType,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.CreatedAt,
		Headers: amqp.Table{
			"aggregate_type": e.AggregateType,
			"aggregate_id":   e.AggregateID.String(),
		},
		Body: e.Payload,
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	return backoff.RetryNotify(
		func() error { return p.Publish(ctx, e.EventType, msg) },
		backoff.WithContext(backoff.WithMaxRetries(policy, p.maxRetries), ctx),
		func(error, time.Duration) { observability.RabbitPublishRetries.Inc() },
	)
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

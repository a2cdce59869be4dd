// Package gateway consumes payment gateway notifications from the broker and
// feeds them to the transaction orchestrator.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
)

type Handler interface {
	NotificationHandler(ctx context.Context, n domain.GatewayNotification) (*domain.TransactionView, error)
}

type Listener struct {
	handler Handler
	logger  observability.Logger
}

func NewListener(handler Handler, logger observability.Logger) *Listener {
	return &Listener{handler: handler, logger: logger}
}

// Run handles deliveries one at a time until ctx ends or the channel closes.
func (l *Listener) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("gateway delivery channel closed")
			}
			l.Handle(ctx, d)
		}
	}
}

// Handle settles one delivery. Notifications that can never succeed are
// rejected without requeue; everything else is requeued for another attempt.
func (l *Listener) Handle(ctx context.Context, d amqp.Delivery) {
	log := l.logger.WithField("message_id", d.MessageId)

	var n domain.GatewayNotification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		log.WithError(err).Warn("malformed gateway notification")
		l.settle(log, d.Reject(false))
		return
	}
	log = log.WithFields(map[string]interface{}{"order_id": n.OrderID, "status_code": n.StatusCode})

	_, err := l.handler.NotificationHandler(ctx, n)
	switch {
	case err == nil:
		l.settle(log, d.Ack(false))
	case permanent(err):
		log.WithError(err).Warn("gateway notification dropped")
		l.settle(log, d.Reject(false))
	default:
		log.WithError(err).Error("gateway notification failed, requeueing")
		l.settle(log, d.Nack(false, true))
	}
}

func (l *Listener) settle(log observability.Logger, err error) {
	if err != nil {
		log.WithError(err).Error("settle delivery")
	}
}

func permanent(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrIllegalTransition,
		domain.ErrUnrecognizedGatewayStatus,
		domain.ErrPaymentExpired,
		domain.ErrUnauthorized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

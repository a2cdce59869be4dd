package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/gateway"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, n domain.GatewayNotification) (*domain.TransactionView, error)

func (f handlerFunc) NotificationHandler(ctx context.Context, n domain.GatewayNotification) (*domain.TransactionView, error) {
	return f(ctx, n)
}

type ack struct {
	acked, rejected, nacked, requeue bool
}

func (a *ack) Ack(uint64, bool) error { a.acked = true; return nil }

func (a *ack) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *ack) Reject(_ uint64, requeue bool) error {
	a.rejected, a.requeue = true, requeue
	return nil
}

func delivery(a *ack, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: a, DeliveryTag: 1, MessageId: "m-1", Body: []byte(body)}
}

const body = `{"transaction_id":"gw-1","order_id":"ord-1","status_code":"200","transaction_time":"2024-05-20T09:05:00Z"}`

func TestListener_Settlement(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ack
	}{
		{"applied", nil, ack{acked: true}},
		{"unknown order", errors.Wrap(domain.ErrNotFound, "payment"), ack{rejected: true}},
		{"unrecognized code", errors.Wrap(domain.ErrUnrecognizedGatewayStatus, "999"), ack{rejected: true}},
		{"late confirm", errors.Wrap(domain.ErrIllegalTransition, "EXPIRED -> CONFIRMED"), ack{rejected: true}},
		{"lost race", errors.Wrap(domain.ErrConflict, "payment"), ack{nacked: true, requeue: true}},
		{"database down", errors.New("connection refused"), ack{nacked: true, requeue: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.GatewayNotification
			l := gateway.NewListener(handlerFunc(func(_ context.Context, n domain.GatewayNotification) (*domain.TransactionView, error) {
				got = n
				return nil, tt.err
			}), observability.NewDiscardLogger())

			a := &ack{}
			l.Handle(context.Background(), delivery(a, body))

			assert.Equal(t, tt.want, *a)
			assert.Equal(t, "ord-1", got.OrderID)
			assert.Equal(t, "200", got.StatusCode)
			assert.True(t, got.Timestamp.Equal(time.Date(2024, 5, 20, 9, 5, 0, 0, time.UTC)))
		})
	}
}

func TestListener_MalformedBodyRejected(t *testing.T) {
	called := false
	l := gateway.NewListener(handlerFunc(func(context.Context, domain.GatewayNotification) (*domain.TransactionView, error) {
		called = true
		return nil, nil
	}), observability.NewDiscardLogger())

	a := &ack{}
	l.Handle(context.Background(), delivery(a, "{not json"))

	assert.False(t, called)
	assert.Equal(t, ack{rejected: true}, *a)
}

func TestListener_RunEndsWithChannel(t *testing.T) {
	l := gateway.NewListener(handlerFunc(func(context.Context, domain.GatewayNotification) (*domain.TransactionView, error) {
		return nil, nil
	}), observability.NewDiscardLogger())

	ch := make(chan amqp.Delivery, 1)
	a := &ack{}
	ch <- delivery(a, body)
	close(ch)

	err := l.Run(context.Background(), ch)
	require.Error(t, err)
	assert.True(t, a.acked)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, l.Run(ctx, make(chan amqp.Delivery)))
}

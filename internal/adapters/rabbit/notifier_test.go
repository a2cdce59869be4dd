package rabbit

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	keys []string
	msgs []amqp.Publishing
	err  error
}

func (c *capture) Publish(_ context.Context, key string, msg amqp.Publishing) error {
	c.keys = append(c.keys, key)
	c.msgs = append(c.msgs, msg)
	return c.err
}

var guest = domain.UserView{ID: uuid.New(), Name: "Ana", Email: "ana@example.com", Kind: domain.UserKindTraveler}

func TestNotifier_Reminder(t *testing.T) {
	pub := &capture{}
	b := domain.Booking{
		ID:           uuid.New(),
		PropertyName: "Villa Kemang",
		CheckIn:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:     time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, NewNotifier(pub).SendReminder(context.Background(), guest, b))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, ReminderRoutingKey, pub.keys[0])
	assert.Equal(t, amqp.Persistent, pub.msgs[0].DeliveryMode)
	assert.JSONEq(t, `{
		"to": "ana@example.com",
		"name": "Ana",
		"booking_id": "`+b.ID.String()+`",
		"property_name": "Villa Kemang",
		"check_in": "2024-06-01T00:00:00Z",
		"check_out": "2024-06-03T00:00:00Z"
	}`, string(pub.msgs[0].Body))
}

func TestNotifier_PaymentStatus(t *testing.T) {
	pub := &capture{}
	p := domain.Payment{
		ID:        uuid.New(),
		BookingID: uuid.New(),
		Status:    domain.PaymentConfirmed,
		Amount:    decimal.RequireFromString("150"),
	}

	require.NoError(t, NewNotifier(pub).SendPaymentStatusChange(context.Background(), guest, p))

	assert.Equal(t, PaymentStatusRoutingKey, pub.keys[0])
	assert.Contains(t, string(pub.msgs[0].Body), `"amount":"150.00"`)
	assert.Contains(t, string(pub.msgs[0].Body), `"status":"CONFIRMED"`)
}

func TestNotifier_PublishError(t *testing.T) {
	pub := &capture{err: amqp.ErrClosed}

	err := NewNotifier(pub).SendPaymentStatusChange(context.Background(), guest, domain.Payment{})
	assert.True(t, errors.Is(err, amqp.ErrClosed))
}

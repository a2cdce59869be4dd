package rabbit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/property-bookings/internal/domain"
)

const (
	ReminderRoutingKey      = "notification.reminder"
	PaymentStatusRoutingKey = "notification.payment_status"
)

type publisher interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// Notifier hands guest notices to the mail service over the events exchange.
type Notifier struct {
	pub publisher
}

func NewNotifier(pub publisher) *Notifier {
	return &Notifier{pub: pub}
}

type reminderMessage struct {
	To           string    `json:"to"`
	Name         string    `json:"name"`
	BookingID    uuid.UUID `json:"booking_id"`
	PropertyName string    `json:"property_name"`
	CheckIn      time.Time `json:"check_in"`
	CheckOut     time.Time `json:"check_out"`
}

type paymentStatusMessage struct {
	To        string               `json:"to"`
	Name      string               `json:"name"`
	BookingID uuid.UUID            `json:"booking_id"`
	PaymentID uuid.UUID            `json:"payment_id"`
	Status    domain.PaymentStatus `json:"status"`
	Amount    string               `json:"amount"`
}

func (n *Notifier) SendReminder(ctx context.Context, user domain.UserView, b domain.Booking) error {
	return n.send(ctx, ReminderRoutingKey, reminderMessage{
		To:           user.Email,
		Name:         user.Name,
		BookingID:    b.ID,
		PropertyName: b.PropertyName,
		CheckIn:      b.CheckIn,
		CheckOut:     b.CheckOut,
	})
}

func (n *Notifier) SendPaymentStatusChange(ctx context.Context, user domain.UserView, p domain.Payment) error {
	return n.send(ctx, PaymentStatusRoutingKey, paymentStatusMessage{
		To:        user.Email,
		Name:      user.Name,
		BookingID: p.BookingID,
		PaymentID: p.ID,
		Status:    p.Status,
		Amount:    p.Amount.StringFixed(2),
	})
}

func (n *Notifier) send(ctx context.Context, key string, msg interface{}) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	err = n.pub.Publish(ctx, key, amqp.Publishing{
		MessageId:    uuid.NewString(),
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	return errors.Wrapf(err, "publish %s", key)
}

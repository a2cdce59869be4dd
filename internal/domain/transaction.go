package domain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionWaitingForPayment      TransactionStatus = "WAITING_FOR_PAYMENT"
	TransactionWaitingForConfirmation TransactionStatus = "WAITING_FOR_CONFIRMATION"
	TransactionConfirmed              TransactionStatus = "CONFIRMED"
	TransactionCompleted              TransactionStatus = "COMPLETED"
	TransactionRejected               TransactionStatus = "REJECTED"
	TransactionCancelled              TransactionStatus = "CANCELLED"
	TransactionExpired                TransactionStatus = "EXPIRED"
)

// TransactionRequest is what a traveler submits to book and pay for a room.
type TransactionRequest struct {
	BookingInput
	Method PaymentMethod `json:"method" validate:"required,oneof=PROOF_UPLOAD VIRTUAL_ACCOUNT"`
	Bank   string        `json:"bank"   validate:"required_if=Method VIRTUAL_ACCOUNT"`
}

// TransactionView is the composite booking + payment exposed to callers.
type TransactionView struct {
	Booking Booking           `json:"booking"`
	Payment Payment           `json:"payment"`
	Items   []BookingItem     `json:"items,omitempty"`
	Request *BookingRequest   `json:"request,omitempty"`
	Status  TransactionStatus `json:"status"`
	Guest   *UserView         `json:"guest,omitempty"`
	Host    *UserView         `json:"host,omitempty"`
}

// NewTransactionView derives the display status. A payment the guest closed
// by cancelling reads as CANCELLED; sweep and gateway expiry read as EXPIRED.
func NewTransactionView(b Booking, p Payment) *TransactionView {
	status := DisplayStatus(b.Status, p.Status)
	if status == TransactionExpired && p.GuestCancelled {
		status = TransactionCancelled
	}
	return &TransactionView{Booking: b, Payment: p, Status: status}
}

func DisplayStatus(b BookingStatus, p PaymentStatus) TransactionStatus {
	switch b {
	case BookingWaitingForConfirmation:
		return TransactionWaitingForConfirmation
	case BookingConfirmed:
		return TransactionConfirmed
	case BookingDone:
		return TransactionCompleted
	case BookingRejected:
		return TransactionRejected
	case BookingCancelled:
		if p == PaymentExpired {
			return TransactionExpired
		}
		return TransactionCancelled
	default:
		return TransactionWaitingForPayment
	}
}

// GatewayNotification is a payment gateway callback, delivered at least once.
type GatewayNotification struct {
	TransactionID string    `json:"transaction_id"`
	OrderID       string    `json:"order_id"`
	StatusCode    string    `json:"status_code"`
	Timestamp     time.Time `json:"transaction_time"`
}

var gatewayStatusCodes = map[string]PaymentStatus{
	"200": PaymentConfirmed,
	"201": PaymentPending,
	"202": PaymentRejected,
	"407": PaymentExpired,
}

// MapGatewayStatus translates a gateway status code into a payment status.
func MapGatewayStatus(code string) (PaymentStatus, error) {
	status, ok := gatewayStatusCodes[code]
	if !ok {
		return "", errors.Wrapf(ErrUnrecognizedGatewayStatus, "status code %q", code)
	}
	return status, nil
}

// SweepReport summarises one auto-cancel run.
type SweepReport struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type AuditEntry struct {
	Entity   string    `json:"entity"`
	EntityID uuid.UUID `json:"entity_id"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Actor    string    `json:"actor"`
	At       time.Time `json:"at"`
}

type OutboxEvent struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED
	DedupeKey     string
}

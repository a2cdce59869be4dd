package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	MethodProofUpload    PaymentMethod = "PROOF_UPLOAD"
	MethodVirtualAccount PaymentMethod = "VIRTUAL_ACCOUNT"
)

type PaymentStatus string

const (
	PaymentPending                PaymentStatus = "PENDING"
	PaymentWaitingForConfirmation PaymentStatus = "WAITING_FOR_CONFIRMATION"
	PaymentConfirmed              PaymentStatus = "CONFIRMED"
	PaymentRejected               PaymentStatus = "REJECTED"
	PaymentExpired                PaymentStatus = "EXPIRED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:                {PaymentWaitingForConfirmation, PaymentConfirmed, PaymentRejected, PaymentExpired},
	PaymentWaitingForConfirmation: {PaymentConfirmed, PaymentRejected, PaymentExpired},
	PaymentConfirmed:              {},
	PaymentRejected:               {},
	PaymentExpired:                {},
}

func (s PaymentStatus) IsValid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, t := range paymentTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

// IsOpen reports whether money can still arrive for the payment.
func (s PaymentStatus) IsOpen() bool {
	return s == PaymentPending || s == PaymentWaitingForConfirmation
}

func (m PaymentMethod) IsValid() bool {
	return m == MethodProofUpload || m == MethodVirtualAccount
}

type Payment struct {
	ID        uuid.UUID       `json:"id"`
	BookingID uuid.UUID       `json:"booking_id"`
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
	Status    PaymentStatus   `json:"status"`
	ProofRef  *string         `json:"proof_ref,omitempty"`
	BankVA    *string         `json:"bank_va,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
	// GuestCancelled marks an EXPIRED payment closed by the guest walking away.
	GuestCancelled bool      `json:"guest_cancelled,omitempty"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ExpiredAt reports whether the payment window closed strictly before now.
// A payment whose expiry equals now is still payable.
func (p *Payment) ExpiredAt(now time.Time) bool {
	return p.ExpiresAt.Before(now)
}

// EligibleForExpiry is true for pending payments whose window has closed.
func (p *Payment) EligibleForExpiry(now time.Time) bool {
	return p.Status == PaymentPending && p.ExpiredAt(now)
}

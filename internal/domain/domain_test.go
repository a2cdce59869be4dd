package domain_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBookingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to domain.BookingStatus
		ok       bool
	}{
		{domain.BookingWaitingForPayment, domain.BookingWaitingForConfirmation, true},
		{domain.BookingWaitingForPayment, domain.BookingCancelled, true},
		{domain.BookingWaitingForPayment, domain.BookingConfirmed, false},
		{domain.BookingWaitingForConfirmation, domain.BookingConfirmed, true},
		{domain.BookingWaitingForConfirmation, domain.BookingRejected, true},
		{domain.BookingWaitingForConfirmation, domain.BookingCancelled, true},
		{domain.BookingConfirmed, domain.BookingDone, true},
		{domain.BookingConfirmed, domain.BookingRejected, false},
		{domain.BookingCancelled, domain.BookingWaitingForPayment, false},
		{domain.BookingRejected, domain.BookingConfirmed, false},
		{domain.BookingDone, domain.BookingCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, domain.BookingDone.IsTerminal())
	assert.True(t, domain.BookingCancelled.IsTerminal())
	assert.False(t, domain.BookingConfirmed.IsTerminal())
}

func TestBooking_CancelConfirmedOnlyBeforeCheckIn(t *testing.T) {
	b := domain.Booking{Status: domain.BookingConfirmed, CheckIn: day(2024, 6, 1), CheckOut: day(2024, 6, 3)}

	assert.True(t, b.CanTransitionTo(domain.BookingCancelled, day(2024, 5, 31)))
	assert.False(t, b.CanTransitionTo(domain.BookingCancelled, day(2024, 6, 1)))
	assert.False(t, b.CanTransitionTo(domain.BookingCancelled, day(2024, 6, 2)))
	assert.True(t, b.CanTransitionTo(domain.BookingDone, day(2024, 6, 4)))
}

func TestOverlaps_HalfOpen(t *testing.T) {
	in, out := day(2024, 6, 1), day(2024, 6, 3)

	assert.True(t, domain.Overlaps(in, out, day(2024, 6, 2), day(2024, 6, 5)))
	assert.True(t, domain.Overlaps(in, out, day(2024, 5, 30), day(2024, 6, 2)))
	assert.True(t, domain.Overlaps(in, out, day(2024, 5, 1), day(2024, 7, 1)))
	assert.False(t, domain.Overlaps(in, out, day(2024, 6, 3), day(2024, 6, 5)), "check-out day is free")
	assert.False(t, domain.Overlaps(in, out, day(2024, 5, 30), day(2024, 6, 1)), "check-in day of next guest")
}

func TestPayment_ExpiryBoundary(t *testing.T) {
	exp := time.Date(2024, 5, 20, 10, 30, 0, 0, time.UTC)
	p := domain.Payment{Status: domain.PaymentPending, ExpiresAt: exp}

	assert.False(t, p.ExpiredAt(exp), "expiry equal to now is not expired")
	assert.False(t, p.EligibleForExpiry(exp))
	assert.True(t, p.ExpiredAt(exp.Add(time.Nanosecond)))
	assert.True(t, p.EligibleForExpiry(exp.Add(time.Nanosecond)))

	p.Status = domain.PaymentWaitingForConfirmation
	assert.False(t, p.EligibleForExpiry(exp.Add(time.Hour)))
}

func TestPaymentStatus_Transitions(t *testing.T) {
	assert.True(t, domain.PaymentPending.CanTransitionTo(domain.PaymentConfirmed))
	assert.True(t, domain.PaymentWaitingForConfirmation.CanTransitionTo(domain.PaymentRejected))
	assert.False(t, domain.PaymentConfirmed.CanTransitionTo(domain.PaymentExpired))
	assert.False(t, domain.PaymentExpired.CanTransitionTo(domain.PaymentConfirmed))
	assert.False(t, domain.PaymentWaitingForConfirmation.CanTransitionTo(domain.PaymentPending))
}

func TestDisplayStatus(t *testing.T) {
	assert.Equal(t, domain.TransactionWaitingForPayment, domain.DisplayStatus(domain.BookingWaitingForPayment, domain.PaymentPending))
	assert.Equal(t, domain.TransactionExpired, domain.DisplayStatus(domain.BookingCancelled, domain.PaymentExpired))
	assert.Equal(t, domain.TransactionCancelled, domain.DisplayStatus(domain.BookingCancelled, domain.PaymentPending))
	assert.Equal(t, domain.TransactionCompleted, domain.DisplayStatus(domain.BookingDone, domain.PaymentConfirmed))
}

func TestNewTransactionView_ExpiredVersusCancelled(t *testing.T) {
	window := time.Date(2024, 5, 20, 9, 30, 0, 0, time.UTC)
	b := domain.Booking{Status: domain.BookingCancelled}

	swept := domain.Payment{Status: domain.PaymentExpired, ExpiresAt: window, UpdatedAt: window.Add(time.Minute)}
	assert.Equal(t, domain.TransactionExpired, domain.NewTransactionView(b, swept).Status)

	early := domain.Payment{Status: domain.PaymentExpired, ExpiresAt: window, UpdatedAt: window.Add(-10 * time.Minute)}
	assert.Equal(t, domain.TransactionExpired, domain.NewTransactionView(b, early).Status, "gateway expiry inside the window")

	cancelled := domain.Payment{Status: domain.PaymentExpired, ExpiresAt: window, UpdatedAt: window.Add(-10 * time.Minute), GuestCancelled: true}
	assert.Equal(t, domain.TransactionCancelled, domain.NewTransactionView(b, cancelled).Status)
}

func TestMapGatewayStatus(t *testing.T) {
	st, err := domain.MapGatewayStatus("200")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentConfirmed, st)

	st, err = domain.MapGatewayStatus("407")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentExpired, st)

	_, err = domain.MapGatewayStatus("999")
	assert.True(t, errors.Is(err, domain.ErrUnrecognizedGatewayStatus))
}

func TestRoom_Quote(t *testing.T) {
	r := domain.Room{NightlyRate: decimal.RequireFromString("75.00")}
	assert.True(t, r.Quote(2).Equal(decimal.RequireFromString("150.00")))
}

func TestInvalidDateRangeIsValidation(t *testing.T) {
	err := errors.Wrap(domain.ErrInvalidDateRange, "create booking")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.True(t, errors.Is(err, domain.ErrInvalidDateRange))
}

func TestBookingFilter_Normalize(t *testing.T) {
	f := domain.BookingFilter{Page: 0, Size: 1000}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, domain.MaxPageSize, f.Size)
	assert.Equal(t, 0, f.Offset())

	f = domain.BookingFilter{Page: 3, Size: 10}.Normalize()
	assert.Equal(t, 20, f.Offset())
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingWaitingForPayment      BookingStatus = "WAITING_FOR_PAYMENT"
	BookingWaitingForConfirmation BookingStatus = "WAITING_FOR_CONFIRMATION"
	BookingConfirmed              BookingStatus = "CONFIRMED"
	BookingCancelled              BookingStatus = "CANCELLED"
	BookingRejected               BookingStatus = "REJECTED"
	BookingDone                   BookingStatus = "DONE"
)

// ActiveBookingStatuses hold a room for their date range.
var ActiveBookingStatuses = []BookingStatus{
	BookingWaitingForPayment,
	BookingWaitingForConfirmation,
	BookingConfirmed,
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingWaitingForPayment:      {BookingWaitingForConfirmation, BookingCancelled},
	BookingWaitingForConfirmation: {BookingConfirmed, BookingRejected, BookingCancelled},
	BookingConfirmed:              {BookingDone, BookingCancelled},
	BookingRejected:               {},
	BookingCancelled:              {},
	BookingDone:                   {},
}

func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// CanTransitionTo reports whether the status table allows s -> target.
// Time-dependent guards (see Booking.CanTransitionTo) are not applied here.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range bookingTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

func (s BookingStatus) IsActive() bool {
	for _, a := range ActiveBookingStatuses {
		if a == s {
			return true
		}
	}
	return false
}

// ReleasesRoom reports whether entering s frees the booked nights.
func (s BookingStatus) ReleasesRoom() bool {
	return s == BookingCancelled || s == BookingRejected
}

type Booking struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	PropertyID   int64           `json:"property_id"`
	PropertyName string          `json:"property_name"`
	RoomID       int64           `json:"room_id"`
	CheckIn      time.Time       `json:"check_in"`
	CheckOut     time.Time       `json:"check_out"`
	Adults       int             `json:"adults"`
	Children     int             `json:"children"`
	Infants      int             `json:"infants"`
	Amount       decimal.Decimal `json:"amount"`
	Status       BookingStatus   `json:"status"`
	Version      int64           `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
}

// CanTransitionTo applies the status table plus the rule that a confirmed
// booking can only be cancelled before check-in.
func (b *Booking) CanTransitionTo(target BookingStatus, now time.Time) bool {
	if !b.Status.CanTransitionTo(target) {
		return false
	}
	if b.Status == BookingConfirmed && target == BookingCancelled {
		return now.Before(b.CheckIn)
	}
	return true
}

func (b *Booking) Nights() int {
	return int(b.CheckOut.Sub(b.CheckIn).Hours() / 24)
}

// OwnedBy reports whether userID is the traveler who made the booking.
func (b *Booking) OwnedBy(userID uuid.UUID) bool {
	return b.UserID == userID
}

// HostedBy reports whether userID is the tenant operating the booked property.
func (b *Booking) HostedBy(userID uuid.UUID) bool {
	return b.TenantID == userID
}

type BookingItem struct {
	ID        uuid.UUID  `json:"id"`
	BookingID uuid.UUID  `json:"booking_id"`
	ExtendTo  *time.Time `json:"extend_to,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type BookingRequest struct {
	ID        uuid.UUID `json:"id"`
	BookingID uuid.UUID `json:"booking_id"`
	StayPreferences
	CreatedAt time.Time `json:"created_at"`
}

// StayPreferences are free-form guest wishes with no lifecycle of their own.
type StayPreferences struct {
	CheckInTime  string `json:"check_in_time,omitempty"  validate:"omitempty,datetime=15:04"`
	CheckOutTime string `json:"check_out_time,omitempty" validate:"omitempty,datetime=15:04"`
	NonSmoking   bool   `json:"non_smoking"`
	Notes        string `json:"notes,omitempty"          validate:"max=500"`
}

// BookingInput is the traveler-supplied part of a new booking.
type BookingInput struct {
	CheckIn     time.Time        `json:"check_in"`
	CheckOut    time.Time        `json:"check_out"`
	Adults      int              `json:"adults"      validate:"gte=0"`
	Children    int              `json:"children"    validate:"gte=0"`
	Infants     int              `json:"infants"     validate:"gte=0"`
	ExtendTo    *time.Time       `json:"extend_to,omitempty"`
	Preferences *StayPreferences `json:"preferences,omitempty"`
}

// BookingDetails is the enriched single-booking view.
type BookingDetails struct {
	Booking Booking         `json:"booking"`
	Items   []BookingItem   `json:"items"`
	Request *BookingRequest `json:"request,omitempty"`
	Payment *Payment        `json:"payment,omitempty"`
}

// Overlaps is the half-open interval test [aIn, aOut) ∩ [bIn, bOut) != ∅.
func Overlaps(aIn, aOut, bIn, bOut time.Time) bool {
	return aIn.Before(bOut) && aOut.After(bIn)
}

// Date truncates t to midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

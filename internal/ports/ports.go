// Package ports declares the collaborators the booking core depends on.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/property-bookings/internal/domain"
)

// UnitOfWork runs fn inside one atomic transaction. Returning an error from fn
// rolls back every write made through tx. Implementations must not be
// re-entered from inside fn.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Bookings() BookingRepository
	Payments() PaymentRepository
	Outbox() OutboxWriter
}

type BookingRepository interface {
	// Insert stores b and claims its room nights. A night already held by an
	// active booking fails with domain.ErrRoomUnavailable.
	Insert(ctx context.Context, b *domain.Booking) error
	InsertItem(ctx context.Context, item *domain.BookingItem) error
	InsertRequest(ctx context.Context, req *domain.BookingRequest) error
	// Get loads a booking and locks it for the rest of the transaction.
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	Items(ctx context.Context, bookingID uuid.UUID) ([]domain.BookingItem, error)
	Request(ctx context.Context, bookingID uuid.UUID) (*domain.BookingRequest, error)
	// Update writes b only if the stored row still has expectedStatus and
	// expectedVersion; otherwise domain.ErrConflict.
	Update(ctx context.Context, b *domain.Booking, expectedStatus domain.BookingStatus, expectedVersion int64) error
	ReleaseRoom(ctx context.Context, bookingID uuid.UUID) error
	FindOverlapping(ctx context.Context, roomID int64, checkIn, checkOut time.Time, statuses []domain.BookingStatus) ([]domain.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID, f domain.BookingFilter) ([]domain.Booking, int, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, f domain.BookingFilter) ([]domain.Booking, int, error)
	ListCheckInsBetween(ctx context.Context, from, to time.Time, status domain.BookingStatus) ([]domain.Booking, error)
	ListCheckOutsThrough(ctx context.Context, through time.Time, status domain.BookingStatus) ([]domain.Booking, error)
}

type PaymentRepository interface {
	Insert(ctx context.Context, p *domain.Payment) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	Update(ctx context.Context, p *domain.Payment, expectedStatus domain.PaymentStatus, expectedVersion int64) error
	// ListExpiredPending returns PENDING payments with expires_at < now.
	ListExpiredPending(ctx context.Context, now time.Time) ([]domain.Payment, error)
}

type OutboxWriter interface {
	Append(ctx context.Context, e domain.OutboxEvent) error
}

type Catalog interface {
	GetRoom(ctx context.Context, roomID int64) (*domain.Room, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.UserView, error)
}

// Notifier delivers user-facing messages. Callers treat it as fire-and-forget.
type Notifier interface {
	SendReminder(ctx context.Context, user domain.UserView, b domain.Booking) error
	SendPaymentStatusChange(ctx context.Context, user domain.UserView, p domain.Payment) error
}

type Auditor interface {
	LogTransition(ctx context.Context, e domain.AuditEntry) error
}

// Locker hands out expiring leases so only one worker runs a job at a time.
type Locker interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

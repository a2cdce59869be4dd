package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/property-bookings/internal/adapters/memory"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func booking(room int64, in, out time.Time) *domain.Booking {
	return &domain.Booking{
		ID:        uuid.New(),
		RoomID:    room,
		CheckIn:   in,
		CheckOut:  out,
		Status:    domain.BookingWaitingForPayment,
		CreatedAt: time.Now(),
	}
}

func TestStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	in := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	b := booking(10, in, in.AddDate(0, 0, 2))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		require.NoError(t, tx.Bookings().Insert(ctx, b))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		_, err := tx.Bookings().Get(ctx, b.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_InsertRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	in := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	err := store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.Bookings().Insert(ctx, booking(10, in, in.AddDate(0, 0, 2))); err != nil {
			return err
		}
		// back-to-back stay on the same room is fine
		if err := tx.Bookings().Insert(ctx, booking(10, in.AddDate(0, 0, 2), in.AddDate(0, 0, 4))); err != nil {
			return err
		}
		return tx.Bookings().Insert(ctx, booking(10, in.AddDate(0, 0, 1), in.AddDate(0, 0, 3)))
	})
	assert.ErrorIs(t, err, domain.ErrRoomUnavailable)
}

func TestStore_UpdateChecksVersion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	in := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	b := booking(10, in, in.AddDate(0, 0, 2))

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.Bookings().Insert(ctx, b)
	}))

	err := store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		next := *b
		next.Status = domain.BookingCancelled
		next.Version = 1
		return tx.Bookings().Update(ctx, &next, domain.BookingWaitingForPayment, 5)
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestStore_PublishPending(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		for i := 0; i < 3; i++ {
			if err := tx.Outbox().Append(ctx, domain.OutboxEvent{ID: uuid.New(), EventType: "booking.created"}); err != nil {
				return err
			}
		}
		return nil
	}))

	var seen int
	n, err := store.PublishPending(ctx, 2, func(context.Context, domain.OutboxEvent) error {
		seen++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, seen)

	n, err = store.PublishPending(ctx, 10, func(context.Context, domain.OutboxEvent) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

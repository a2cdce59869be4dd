// Package availability answers whether a room is free for a date range.
package availability

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/ports"
)

type Checker struct {
	uow ports.UnitOfWork
}

func NewChecker(uow ports.UnitOfWork) *Checker {
	return &Checker{uow: uow}
}

// Check must run in the transaction that will insert the booking so the
// answer cannot go stale before the write.
func (c *Checker) Check(ctx context.Context, tx ports.Tx, roomID int64, checkIn, checkOut time.Time) (bool, error) {
	if !checkOut.After(checkIn) {
		return false, domain.ErrInvalidDateRange
	}
	clash, err := tx.Bookings().FindOverlapping(ctx, roomID, checkIn, checkOut, domain.ActiveBookingStatuses)
	if err != nil {
		return false, errors.Wrapf(err, "find overlapping bookings for room %d", roomID)
	}
	return len(clash) == 0, nil
}

// IsAvailable is the read-only variant for callers outside a booking flow.
func (c *Checker) IsAvailable(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (bool, error) {
	var ok bool
	err := c.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		ok, err = c.Check(ctx, tx, roomID, domain.Date(checkIn), domain.Date(checkOut))
		return err
	})
	return ok, err
}

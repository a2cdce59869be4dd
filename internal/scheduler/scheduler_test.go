package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/ports/mocks"
	"github.com/robertarktes/property-bookings/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls atomic.Int32
}

// AutoCancelTransaction fails on the first call and panics on the second.
func (f *fakeSweeper) AutoCancelTransaction(context.Context) (domain.SweepReport, error) {
	switch f.calls.Add(1) {
	case 1:
		return domain.SweepReport{}, errors.New("db unavailable")
	case 2:
		panic("boom")
	default:
		return domain.SweepReport{Scanned: 1, Expired: 1}, nil
	}
}

func TestScheduler_KeepsRunningAfterFailures(t *testing.T) {
	sweeper := &fakeSweeper{}
	logger := observability.NewDiscardLogger()
	s := scheduler.New(logger)
	s.Add(scheduler.ExpiryJob(sweeper, 10*time.Millisecond, logger))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Start(ctx))

	assert.GreaterOrEqual(t, sweeper.calls.Load(), int32(3))
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	s := scheduler.New(observability.NewDiscardLogger())
	s.Add(scheduler.Job{Name: "noop", Interval: time.Hour, Run: func(context.Context) error { return nil }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}

func TestScheduler_RejectsBadJobs(t *testing.T) {
	s := scheduler.New(observability.NewDiscardLogger())
	assert.Error(t, s.Start(context.Background()))

	s.Add(scheduler.Job{Name: "broken", Interval: 0, Run: func(context.Context) error { return nil }})
	assert.Error(t, s.Start(context.Background()))
}

func TestRunOnce_Lease(t *testing.T) {
	ctx := context.Background()
	var runs int
	job := scheduler.Job{Name: "payment-expiry", Interval: time.Minute, Run: func(context.Context) error {
		runs++
		return nil
	}}

	t.Run("held elsewhere", func(t *testing.T) {
		locker := &mocks.Locker{}
		locker.On("Acquire", mock.Anything, "lock:job:payment-expiry", "worker-1", 50*time.Second).Return(false, nil).Once()
		s := scheduler.New(observability.NewDiscardLogger(), scheduler.WithLease(locker, 50*time.Second, "worker-1"))

		runs = 0
		s.RunOnce(ctx, job)
		assert.Zero(t, runs)
		locker.AssertExpectations(t)
		locker.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("acquired", func(t *testing.T) {
		locker := &mocks.Locker{}
		locker.On("Acquire", mock.Anything, "lock:job:payment-expiry", "worker-1", 50*time.Second).Return(true, nil).Once()
		locker.On("Release", mock.Anything, "lock:job:payment-expiry", "worker-1").Return(nil).Once()
		s := scheduler.New(observability.NewDiscardLogger(), scheduler.WithLease(locker, 50*time.Second, "worker-1"))

		runs = 0
		s.RunOnce(ctx, job)
		assert.Equal(t, 1, runs)
		locker.AssertExpectations(t)
	})

	t.Run("lock error skips the run", func(t *testing.T) {
		locker := &mocks.Locker{}
		locker.On("Acquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down")).Once()
		s := scheduler.New(observability.NewDiscardLogger(), scheduler.WithLease(locker, 50*time.Second, "worker-1"))

		runs = 0
		s.RunOnce(ctx, job)
		assert.Zero(t, runs)
	})
}

type counter struct {
	n   int
	err error
}

func (c *counter) UserBookingReminder(context.Context) (int, error) { return c.n, c.err }
func (c *counter) CompleteStays(context.Context) (int, error)       { return c.n, c.err }

func TestJobs(t *testing.T) {
	logger := observability.NewDiscardLogger()
	ctx := context.Background()

	ok := &counter{n: 2}
	assert.NoError(t, scheduler.ReminderJob(ok, time.Hour, logger).Run(ctx))
	assert.NoError(t, scheduler.CompletionJob(ok, time.Hour, logger).Run(ctx))

	failing := &counter{err: errors.New("query failed")}
	assert.Error(t, scheduler.ReminderJob(failing, time.Hour, logger).Run(ctx))
	assert.Error(t, scheduler.CompletionJob(failing, time.Hour, logger).Run(ctx))
}

package scheduler

import (
	"context"
	"time"

	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
)

type sweeper interface {
	AutoCancelTransaction(ctx context.Context) (domain.SweepReport, error)
}

type reminder interface {
	UserBookingReminder(ctx context.Context) (int, error)
}

type completer interface {
	CompleteStays(ctx context.Context) (int, error)
}

func ExpiryJob(s sweeper, interval time.Duration, logger observability.Logger) Job {
	return Job{
		Name:     "payment-expiry",
		Interval: interval,
		Run: func(ctx context.Context) error {
			report, err := s.AutoCancelTransaction(ctx)
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				logger.WithField("failed", report.Failed).Warn("sweep left payments for the next run")
			}
			return nil
		},
	}
}

func ReminderJob(r reminder, interval time.Duration, logger observability.Logger) Job {
	return Job{
		Name:     "checkin-reminder",
		Interval: interval,
		Run: func(ctx context.Context) error {
			sent, err := r.UserBookingReminder(ctx)
			if err != nil {
				return err
			}
			logger.WithField("sent", sent).Info("check-in reminders sent")
			return nil
		},
	}
}

func CompletionJob(c completer, interval time.Duration, logger observability.Logger) Job {
	return Job{
		Name:     "stay-completion",
		Interval: interval,
		Run: func(ctx context.Context) error {
			done, err := c.CompleteStays(ctx)
			if err != nil {
				return err
			}
			if done > 0 {
				logger.WithField("completed", done).Info("stays completed")
			}
			return nil
		},
	}
}

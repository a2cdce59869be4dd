// Package scheduler runs the periodic background jobs: the payment expiry
// sweep, check-in reminders and stay completion.
package scheduler

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/ports"
	"golang.org/x/sync/errgroup"
)

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs   []Job
	logger observability.Logger

	locker ports.Locker
	lease  time.Duration
	owner  string
}

type Option func(*Scheduler)

// WithLease makes every run take a lock first, so only one instance runs a
// given job at a time. ttl should be shorter than the job interval.
func WithLease(locker ports.Locker, ttl time.Duration, owner string) Option {
	return func(s *Scheduler) {
		s.locker = locker
		s.lease = ttl
		s.owner = owner
	}
}

func New(logger observability.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Add(jobs ...Job) {
	s.jobs = append(s.jobs, jobs...)
}

// Start runs every job on its own ticker until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return errors.New("scheduler has no jobs")
	}
	for _, j := range s.jobs {
		if j.Interval <= 0 || j.Run == nil {
			return errors.Newf("job %q needs a positive interval and a run func", j.Name)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, j := range s.jobs {
		j := j
		g.Go(func() error {
			s.loop(ctx, j)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	log := s.logger.WithField("job", j.Name)
	log.WithField("interval", j.Interval.String()).Info("job scheduled")

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("job stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx, j)
		}
	}
}

// RunOnce executes one run of j. Errors and panics are logged and counted;
// they never stop later runs.
func (s *Scheduler) RunOnce(ctx context.Context, j Job) {
	log := s.logger.WithField("job", j.Name)

	if s.locker != nil {
		key := "lock:job:" + j.Name
		ok, err := s.locker.Acquire(ctx, key, s.owner, s.lease)
		if err != nil {
			observability.JobRuns.WithLabelValues(j.Name, "lock_error").Inc()
			log.WithError(err).Warn("job lease unavailable")
			return
		}
		if !ok {
			observability.JobRuns.WithLabelValues(j.Name, "skipped").Inc()
			log.Debug("job lease held elsewhere")
			return
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, s.owner); err != nil {
				log.WithError(err).Warn("job lease release failed")
			}
		}()
	}

	if err := s.safeRun(ctx, j); err != nil {
		observability.JobRuns.WithLabelValues(j.Name, "error").Inc()
		log.WithError(err).Error("job run failed")
		return
	}
	observability.JobRuns.WithLabelValues(j.Name, "ok").Inc()
}

func (s *Scheduler) safeRun(ctx context.Context, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("job %s panicked: %v", j.Name, r)
		}
	}()
	return j.Run(ctx)
}

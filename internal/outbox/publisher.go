// Package outbox relays committed outbox events to the message broker.
package outbox

import (
	"context"
	"time"

	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
)

// Store hands out unpublished events in commit order and marks each one
// published after publish returns nil.
type Store interface {
	PublishPending(ctx context.Context, limit int, publish func(ctx context.Context, e domain.OutboxEvent) error) (int, error)
}

type Sink interface {
	PublishEvent(ctx context.Context, e domain.OutboxEvent) error
}

type Publisher struct {
	store    Store
	sink     Sink
	interval time.Duration
	batch    int
	logger   observability.Logger
}

func NewPublisher(store Store, sink Sink, interval time.Duration, batch int, logger observability.Logger) *Publisher {
	return &Publisher{store: store, sink: sink, interval: interval, batch: batch, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush drains full batches until the backlog is empty or a publish fails.
// It returns the number of events published.
func (p *Publisher) Flush(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := p.store.PublishPending(ctx, p.batch, p.sink.PublishEvent)
		total += n
		if err != nil {
			p.logger.WithError(err).WithField("published", n).Error("outbox relay stopped")
			return total
		}
		if n < p.batch {
			break
		}
	}
	if total > 0 {
		p.logger.WithField("published", total).Debug("outbox flushed")
	}
	return total
}

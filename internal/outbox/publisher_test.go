package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/property-bookings/internal/adapters/memory"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/outbox"
	"github.com/robertarktes/property-bookings/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	got    []domain.OutboxEvent
	failAt int
}

func (s *sink) PublishEvent(_ context.Context, e domain.OutboxEvent) error {
	if s.failAt > 0 && len(s.got)+1 == s.failAt {
		s.failAt = 0
		return errors.New("broker unavailable")
	}
	s.got = append(s.got, e)
	return nil
}

func seed(t *testing.T, store *memory.Store, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, n)
	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		for i := 0; i < n; i++ {
			e, err := domain.NewOutboxEvent("booking", uuid.New(), domain.EventBookingStatusChanged, map[string]int{"seq": i})
			if err != nil {
				return err
			}
			ids = append(ids, e.ID)
			if err := tx.Outbox().Append(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))
	return ids
}

func TestPublisher_FlushDrainsBacklogInOrder(t *testing.T) {
	store := memory.NewStore()
	ids := seed(t, store, 7)
	s := &sink{}

	pub := outbox.NewPublisher(store, s, time.Second, 3, observability.NewDiscardLogger())
	assert.Equal(t, 7, pub.Flush(context.Background()))

	require.Len(t, s.got, 7)
	for i, e := range s.got {
		assert.Equal(t, ids[i], e.ID)
	}
	for _, e := range store.Outbox() {
		assert.Equal(t, "PUBLISHED", e.Status)
		assert.NotNil(t, e.PublishedAt)
	}
	assert.Zero(t, pub.Flush(context.Background()))
}

func TestPublisher_FailureLeavesRestForNextFlush(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, 4)
	s := &sink{failAt: 3}

	pub := outbox.NewPublisher(store, s, time.Second, 10, observability.NewDiscardLogger())
	assert.Equal(t, 2, pub.Flush(context.Background()))

	pending := 0
	for _, e := range store.Outbox() {
		if e.Status == "NEW" {
			pending++
		}
	}
	assert.Equal(t, 2, pending)

	assert.Equal(t, 2, pub.Flush(context.Background()))
	assert.Len(t, s.got, 4)
}

func TestPublisher_RunStopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, 1)
	s := &sink{}
	pub := outbox.NewPublisher(store, s, 10*time.Millisecond, 10, observability.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pub.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return store.Outbox()[0].Status == "PUBLISHED"
	}, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}

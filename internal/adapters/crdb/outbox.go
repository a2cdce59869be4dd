package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
)

type outboxWriter struct {
	tx pgx.Tx
}

func (w *outboxWriter) Append(ctx context.Context, e domain.OutboxEvent) error {
	_, err := w.tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, created_at, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, 'NEW', $7)
	`, e.ID, e.AggregateType, e.AggregateID, e.EventType, e.Payload, e.CreatedAt, e.DedupeKey)
	return err
}

// PublishPending locks up to limit NEW events, hands them to publish in
// creation order and marks the delivered ones, all in one transaction.
// Concurrent relays skip rows another relay holds.
func (r *Repository) PublishPending(ctx context.Context, limit int, publish func(ctx context.Context, e domain.OutboxEvent) error) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "begin outbox tx")
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, err
	}
	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload,
			&e.CreatedAt, &e.PublishedAt, &e.Status, &e.DedupeKey); err != nil {
			rows.Close()
			return 0, err
		}
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(events) > 0 {
		observability.OutboxLag.Set(time.Since(events[0].CreatedAt).Seconds())
	} else {
		observability.OutboxLag.Set(0)
	}

	published := 0
	var publishErr error
	for _, e := range events {
		if publishErr = publish(ctx, e); publishErr != nil {
			break
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
		`, e.ID, time.Now().UTC()); err != nil {
			return 0, err
		}
		published++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit outbox tx")
	}
	return published, publishErr
}

// Package crdb implements the persistence ports on CockroachDB through pgx.
package crdb

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/ports"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

type Repository struct {
	pool       *pgxpool.Pool
	maxRetries uint64
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, maxRetries: 5}
}

// WithTx runs fn in a SERIALIZABLE transaction. Serialization failures are
// retried with exponential backoff; any other error rolls back and returns.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	op := func() error {
		err := r.runTx(ctx, fn)
		if err == nil || errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond

	return backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx),
		func(error, time.Duration) { observability.DBTxRetries.Inc() })
}

func (r *Repository) runTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return mapError(err)
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit(ctx))
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
		return errors.Wrap(domain.ErrSerializationFailure, pgErr.Message)
	}
	return err
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Bookings() ports.BookingRepository { return &bookingRepo{tx: t.tx} }
func (t *pgTx) Payments() ports.PaymentRepository { return &paymentRepo{tx: t.tx} }
func (t *pgTx) Outbox() ports.OutboxWriter        { return &outboxWriter{tx: t.tx} }

type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(domain.ErrNotFound, what)
	}
	return err
}

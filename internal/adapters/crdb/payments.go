package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, booking_id, order_id, amount::STRING, method, status, proof_ref, bank_va,
	expires_at, guest_cancelled, version, created_at, updated_at`

type paymentRepo struct {
	tx pgx.Tx
}

func scanPayment(row rowScanner) (domain.Payment, error) {
	var (
		p              domain.Payment
		amount         string
		method, status string
	)
	err := row.Scan(&p.ID, &p.BookingID, &p.OrderID, &amount, &method, &status, &p.ProofRef, &p.BankVA,
		&p.ExpiresAt, &p.GuestCancelled, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Payment{}, errors.Wrapf(err, "payment %s amount", p.ID)
	}
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	p.ExpiresAt, p.CreatedAt, p.UpdatedAt = p.ExpiresAt.UTC(), p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return p, nil
}

func (r *paymentRepo) Insert(ctx context.Context, p *domain.Payment) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO payments (id, booking_id, order_id, amount, method, status, proof_ref, bank_va,
			expires_at, guest_cancelled, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4::DECIMAL, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.BookingID, p.OrderID, p.Amount.String(), string(p.Method), string(p.Status), p.ProofRef, p.BankVA,
		p.ExpiresAt, p.GuestCancelled, p.Version, p.CreatedAt, p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode {
		return errors.Wrapf(domain.ErrConflict, "booking %s already has a payment", p.BookingID)
	}
	return err
}

func (r *paymentRepo) one(ctx context.Context, where string, arg any) (*domain.Payment, error) {
	p, err := scanPayment(r.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where+` FOR UPDATE`, arg))
	if err != nil {
		return nil, notFound(err, "payment")
	}
	return &p, nil
}

func (r *paymentRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return r.one(ctx, "id = $1", id)
}

func (r *paymentRepo) GetByBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Payment, error) {
	return r.one(ctx, "booking_id = $1", bookingID)
}

func (r *paymentRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.one(ctx, "order_id = $1", orderID)
}

func (r *paymentRepo) Update(ctx context.Context, p *domain.Payment, expectedStatus domain.PaymentStatus, expectedVersion int64) error {
	result, err := r.tx.Exec(ctx, `
		UPDATE payments SET status = $2, proof_ref = $3, guest_cancelled = $4, version = $5, updated_at = $6
		WHERE id = $1 AND status = $7 AND version = $8
	`, p.ID, string(p.Status), p.ProofRef, p.GuestCancelled, p.Version, p.UpdatedAt, string(expectedStatus), expectedVersion)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrConflict, "payment %s changed since read", p.ID)
	}
	return nil
}

func (r *paymentRepo) ListExpiredPending(ctx context.Context, now time.Time) ([]domain.Payment, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at
	`, string(domain.PaymentPending), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/shopspring/decimal"
)

const bookingColumns = `id, user_id, tenant_id, property_id, property_name, room_id, check_in, check_out,
	adults, children, infants, amount::STRING, status, version, created_at, updated_at, deleted_at`

type bookingRepo struct {
	tx pgx.Tx
}

func scanBooking(row rowScanner) (domain.Booking, error) {
	var (
		b      domain.Booking
		amount string
		status string
	)
	err := row.Scan(&b.ID, &b.UserID, &b.TenantID, &b.PropertyID, &b.PropertyName, &b.RoomID,
		&b.CheckIn, &b.CheckOut, &b.Adults, &b.Children, &b.Infants, &amount, &status, &b.Version,
		&b.CreatedAt, &b.UpdatedAt, &b.DeletedAt)
	if err != nil {
		return domain.Booking{}, err
	}
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Booking{}, errors.Wrapf(err, "booking %s amount", b.ID)
	}
	b.Status = domain.BookingStatus(status)
	b.CheckIn, b.CheckOut = domain.Date(b.CheckIn), domain.Date(b.CheckOut)
	b.CreatedAt, b.UpdatedAt = b.CreatedAt.UTC(), b.UpdatedAt.UTC()
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var res []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// Insert writes the booking and claims one room_nights row per night. The
// partial unique index on active nights turns a concurrent overlap into
// domain.ErrRoomUnavailable.
func (r *bookingRepo) Insert(ctx context.Context, b *domain.Booking) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO bookings (id, user_id, tenant_id, property_id, property_name, room_id, check_in, check_out,
			adults, children, infants, amount, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::DECIMAL, $13, $14, $15, $16)
	`, b.ID, b.UserID, b.TenantID, b.PropertyID, b.PropertyName, b.RoomID, b.CheckIn, b.CheckOut,
		b.Adults, b.Children, b.Infants, b.Amount.String(), string(b.Status), b.Version, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return err
	}

	result, err := r.tx.Exec(ctx, `
		INSERT INTO room_nights (room_id, night, booking_id, status)
		SELECT $1, d::DATE, $2, 'ACTIVE'
		FROM generate_series($3::TIMESTAMP, $4::TIMESTAMP - INTERVAL '1 day', INTERVAL '1 day') AS g(d)
		ON CONFLICT (room_id, night) WHERE status = 'ACTIVE' DO NOTHING
	`, b.RoomID, b.ID, b.CheckIn, b.CheckOut)
	if err != nil {
		return err
	}
	if result.RowsAffected() != int64(b.Nights()) {
		return errors.Wrapf(domain.ErrRoomUnavailable, "room %d", b.RoomID)
	}
	return nil
}

func (r *bookingRepo) InsertItem(ctx context.Context, item *domain.BookingItem) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO booking_items (id, booking_id, extend_to, created_at) VALUES ($1, $2, $3, $4)
	`, item.ID, item.BookingID, item.ExtendTo, item.CreatedAt)
	return err
}

func (r *bookingRepo) InsertRequest(ctx context.Context, req *domain.BookingRequest) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO booking_requests (id, booking_id, check_in_time, check_out_time, non_smoking, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, req.ID, req.BookingID, req.CheckInTime, req.CheckOutTime, req.NonSmoking, req.Notes, req.CreatedAt)
	return err
}

func (r *bookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, err := scanBooking(r.tx.QueryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND deleted_at IS NULL FOR UPDATE
	`, id))
	if err != nil {
		return nil, notFound(err, "booking")
	}
	return &b, nil
}

func (r *bookingRepo) Items(ctx context.Context, bookingID uuid.UUID) ([]domain.BookingItem, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, booking_id, extend_to, created_at FROM booking_items WHERE booking_id = $1 ORDER BY created_at
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.BookingItem
	for rows.Next() {
		var item domain.BookingItem
		if err := rows.Scan(&item.ID, &item.BookingID, &item.ExtendTo, &item.CreatedAt); err != nil {
			return nil, err
		}
		if item.ExtendTo != nil {
			d := domain.Date(*item.ExtendTo)
			item.ExtendTo = &d
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *bookingRepo) Request(ctx context.Context, bookingID uuid.UUID) (*domain.BookingRequest, error) {
	var req domain.BookingRequest
	err := r.tx.QueryRow(ctx, `
		SELECT id, booking_id, check_in_time, check_out_time, non_smoking, notes, created_at
		FROM booking_requests WHERE booking_id = $1
	`, bookingID).Scan(&req.ID, &req.BookingID, &req.CheckInTime, &req.CheckOutTime, &req.NonSmoking, &req.Notes, &req.CreatedAt)
	if err != nil {
		return nil, notFound(err, "booking request")
	}
	req.CreatedAt = req.CreatedAt.UTC()
	return &req, nil
}

func (r *bookingRepo) Update(ctx context.Context, b *domain.Booking, expectedStatus domain.BookingStatus, expectedVersion int64) error {
	result, err := r.tx.Exec(ctx, `
		UPDATE bookings SET status = $2, version = $3, updated_at = $4
		WHERE id = $1 AND status = $5 AND version = $6 AND deleted_at IS NULL
	`, b.ID, string(b.Status), b.Version, b.UpdatedAt, string(expectedStatus), expectedVersion)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrConflict, "booking %s changed since read", b.ID)
	}
	return nil
}

func (r *bookingRepo) ReleaseRoom(ctx context.Context, bookingID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE room_nights SET status = 'RELEASED' WHERE booking_id = $1 AND status = 'ACTIVE'
	`, bookingID)
	return err
}

func statusStrings(statuses []domain.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *bookingRepo) FindOverlapping(ctx context.Context, roomID int64, checkIn, checkOut time.Time, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE room_id = $1 AND deleted_at IS NULL AND status = ANY($4)
			AND check_in < $3 AND check_out > $2
		ORDER BY created_at DESC
		FOR UPDATE
	`, roomID, checkIn, checkOut, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *bookingRepo) ListByUser(ctx context.Context, userID uuid.UUID, f domain.BookingFilter) ([]domain.Booking, int, error) {
	return r.page(ctx, "user_id", userID, f)
}

func (r *bookingRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, f domain.BookingFilter) ([]domain.Booking, int, error) {
	return r.page(ctx, "tenant_id", tenantID, f)
}

// page is only called with a fixed owner column name.
func (r *bookingRepo) page(ctx context.Context, column string, owner uuid.UUID, f domain.BookingFilter) ([]domain.Booking, int, error) {
	f = f.Normalize()
	where := column + ` = $1 AND deleted_at IS NULL AND ($2 = '' OR property_name ILIKE '%' || $2 || '%')`

	var total int
	if err := r.tx.QueryRow(ctx, `SELECT count(*) FROM bookings WHERE `+where, owner, f.Search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.tx.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE `+where+`
		ORDER BY created_at DESC, id LIMIT $3 OFFSET $4
	`, owner, f.Search, f.Size, f.Offset())
	if err != nil {
		return nil, 0, err
	}
	items, err := collectBookings(rows)
	return items, total, err
}

func (r *bookingRepo) ListCheckInsBetween(ctx context.Context, from, to time.Time, status domain.BookingStatus) ([]domain.Booking, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = $1 AND deleted_at IS NULL AND check_in >= $2 AND check_in < $3
		ORDER BY check_in
	`, string(status), from, to)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *bookingRepo) ListCheckOutsThrough(ctx context.Context, through time.Time, status domain.BookingStatus) ([]domain.Booking, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = $1 AND deleted_at IS NULL AND check_out <= $2
		ORDER BY check_out
	`, string(status), through)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

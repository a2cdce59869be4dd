// Package memory is an in-process implementation of the persistence ports.
// Units of work are serialised behind one mutex and committed by swapping in
// a copy of the state, so a failed unit leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/ports"
)

type Store struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	bookings map[uuid.UUID]domain.Booking
	items    map[uuid.UUID][]domain.BookingItem
	requests map[uuid.UUID]domain.BookingRequest
	payments map[uuid.UUID]domain.Payment
	outbox   []domain.OutboxEvent
}

func NewStore() *Store {
	return &Store{state: &state{
		bookings: make(map[uuid.UUID]domain.Booking),
		items:    make(map[uuid.UUID][]domain.BookingItem),
		requests: make(map[uuid.UUID]domain.BookingRequest),
		payments: make(map[uuid.UUID]domain.Payment),
	}}
}

func (s *state) clone() *state {
	c := &state{
		bookings: make(map[uuid.UUID]domain.Booking, len(s.bookings)),
		items:    make(map[uuid.UUID][]domain.BookingItem, len(s.items)),
		requests: make(map[uuid.UUID]domain.BookingRequest, len(s.requests)),
		payments: make(map[uuid.UUID]domain.Payment, len(s.payments)),
		outbox:   append([]domain.OutboxEvent(nil), s.outbox...),
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]domain.BookingItem(nil), v...)
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Outbox returns a snapshot of every event appended so far.
func (s *Store) Outbox() []domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboxEvent(nil), s.state.outbox...)
}

// PublishPending hands NEW events to publish in creation order and marks the
// published ones. It stops at the first publish error.
func (s *Store) PublishPending(ctx context.Context, limit int, publish func(ctx context.Context, e domain.OutboxEvent) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.state.outbox {
		if n >= limit {
			break
		}
		e := &s.state.outbox[i]
		if e.Status != "NEW" {
			continue
		}
		if err := publish(ctx, *e); err != nil {
			return n, err
		}
		now := time.Now().UTC()
		e.Status = "PUBLISHED"
		e.PublishedAt = &now
		n++
	}
	return n, nil
}

type tx struct {
	st *state
}

func (t *tx) Bookings() ports.BookingRepository { return bookingRepo{t.st} }
func (t *tx) Payments() ports.PaymentRepository { return paymentRepo{t.st} }
func (t *tx) Outbox() ports.OutboxWriter        { return outboxWriter{t.st} }

type bookingRepo struct {
	st *state
}

func (r bookingRepo) Insert(_ context.Context, b *domain.Booking) error {
	for _, other := range r.st.bookings {
		if other.RoomID != b.RoomID || other.DeletedAt != nil || !other.Status.IsActive() {
			continue
		}
		if domain.Overlaps(other.CheckIn, other.CheckOut, b.CheckIn, b.CheckOut) {
			return domain.ErrRoomUnavailable
		}
	}
	r.st.bookings[b.ID] = *b
	return nil
}

func (r bookingRepo) InsertItem(_ context.Context, item *domain.BookingItem) error {
	r.st.items[item.BookingID] = append(r.st.items[item.BookingID], *item)
	return nil
}

func (r bookingRepo) InsertRequest(_ context.Context, req *domain.BookingRequest) error {
	r.st.requests[req.BookingID] = *req
	return nil
}

func (r bookingRepo) Get(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, ok := r.st.bookings[id]
	if !ok || b.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (r bookingRepo) Items(_ context.Context, bookingID uuid.UUID) ([]domain.BookingItem, error) {
	return append([]domain.BookingItem(nil), r.st.items[bookingID]...), nil
}

func (r bookingRepo) Request(_ context.Context, bookingID uuid.UUID) (*domain.BookingRequest, error) {
	req, ok := r.st.requests[bookingID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &req, nil
}

func (r bookingRepo) Update(_ context.Context, b *domain.Booking, expectedStatus domain.BookingStatus, expectedVersion int64) error {
	cur, ok := r.st.bookings[b.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != expectedStatus || cur.Version != expectedVersion {
		return domain.ErrConflict
	}
	r.st.bookings[b.ID] = *b
	return nil
}

// ReleaseRoom is implicit here: availability is derived from booking status.
func (r bookingRepo) ReleaseRoom(_ context.Context, bookingID uuid.UUID) error {
	if _, ok := r.st.bookings[bookingID]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (r bookingRepo) FindOverlapping(_ context.Context, roomID int64, checkIn, checkOut time.Time, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	var res []domain.Booking
	for _, b := range r.st.bookings {
		if b.RoomID != roomID || b.DeletedAt != nil || !hasStatus(statuses, b.Status) {
			continue
		}
		if domain.Overlaps(b.CheckIn, b.CheckOut, checkIn, checkOut) {
			res = append(res, b)
		}
	}
	sortByCreated(res)
	return res, nil
}

func (r bookingRepo) ListByUser(_ context.Context, userID uuid.UUID, f domain.BookingFilter) ([]domain.Booking, int, error) {
	return r.page(func(b domain.Booking) bool { return b.UserID == userID }, f)
}

func (r bookingRepo) ListByTenant(_ context.Context, tenantID uuid.UUID, f domain.BookingFilter) ([]domain.Booking, int, error) {
	return r.page(func(b domain.Booking) bool { return b.TenantID == tenantID }, f)
}

func (r bookingRepo) page(match func(domain.Booking) bool, f domain.BookingFilter) ([]domain.Booking, int, error) {
	f = f.Normalize()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var all []domain.Booking
	for _, b := range r.st.bookings {
		if b.DeletedAt != nil || !match(b) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(b.PropertyName), search) {
			continue
		}
		all = append(all, b)
	}
	sortByCreated(all)
	total := len(all)
	start := f.Offset()
	if start >= total {
		return []domain.Booking{}, total, nil
	}
	end := start + f.Size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r bookingRepo) ListCheckInsBetween(_ context.Context, from, to time.Time, status domain.BookingStatus) ([]domain.Booking, error) {
	var res []domain.Booking
	for _, b := range r.st.bookings {
		if b.DeletedAt == nil && b.Status == status && !b.CheckIn.Before(from) && b.CheckIn.Before(to) {
			res = append(res, b)
		}
	}
	sortByCreated(res)
	return res, nil
}

func (r bookingRepo) ListCheckOutsThrough(_ context.Context, through time.Time, status domain.BookingStatus) ([]domain.Booking, error) {
	var res []domain.Booking
	for _, b := range r.st.bookings {
		if b.DeletedAt == nil && b.Status == status && !b.CheckOut.After(through) {
			res = append(res, b)
		}
	}
	sortByCreated(res)
	return res, nil
}

type paymentRepo struct {
	st *state
}

func (r paymentRepo) Insert(_ context.Context, p *domain.Payment) error {
	for _, other := range r.st.payments {
		if other.BookingID == p.BookingID {
			return domain.ErrConflict
		}
	}
	r.st.payments[p.ID] = *p
	return nil
}

func (r paymentRepo) Get(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, ok := r.st.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r paymentRepo) GetByBooking(_ context.Context, bookingID uuid.UUID) (*domain.Payment, error) {
	for _, p := range r.st.payments {
		if p.BookingID == bookingID {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r paymentRepo) GetByOrderID(_ context.Context, orderID string) (*domain.Payment, error) {
	for _, p := range r.st.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r paymentRepo) Update(_ context.Context, p *domain.Payment, expectedStatus domain.PaymentStatus, expectedVersion int64) error {
	cur, ok := r.st.payments[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != expectedStatus || cur.Version != expectedVersion {
		return domain.ErrConflict
	}
	r.st.payments[p.ID] = *p
	return nil
}

func (r paymentRepo) ListExpiredPending(_ context.Context, now time.Time) ([]domain.Payment, error) {
	var res []domain.Payment
	for _, p := range r.st.payments {
		if p.EligibleForExpiry(now) {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ExpiresAt.Before(res[j].ExpiresAt) })
	return res, nil
}

type outboxWriter struct {
	st *state
}

func (w outboxWriter) Append(_ context.Context, e domain.OutboxEvent) error {
	if e.Status == "" {
		e.Status = "NEW"
	}
	w.st.outbox = append(w.st.outbox, e)
	return nil
}

func hasStatus(statuses []domain.BookingStatus, s domain.BookingStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func sortByCreated(bs []domain.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].ID.String() < bs[j].ID.String()
		}
		return bs[i].CreatedAt.After(bs[j].CreatedAt)
	})
}

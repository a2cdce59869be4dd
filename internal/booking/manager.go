// Package booking owns booking creation and booking status transitions.
package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robertarktes/property-bookings/internal/audit"
	"github.com/robertarktes/property-bookings/internal/availability"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/ports"
	"github.com/shopspring/decimal"
)

type Manager struct {
	uow          ports.UnitOfWork
	checker      *availability.Checker
	catalog      ports.Catalog
	notifier     ports.Notifier
	recorder     *audit.Recorder
	validate     *validator.Validate
	logger       observability.Logger
	now          func() time.Time
	reminderLead time.Duration
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithReminderLead sets how far past tomorrow's midnight the reminder scan looks.
func WithReminderLead(d time.Duration) Option {
	return func(m *Manager) { m.reminderLead = d }
}

func NewManager(
	uow ports.UnitOfWork,
	checker *availability.Checker,
	catalog ports.Catalog,
	notifier ports.Notifier,
	recorder *audit.Recorder,
	logger observability.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		uow:          uow,
		checker:      checker,
		catalog:      catalog,
		notifier:     notifier,
		recorder:     recorder,
		validate:     validator.New(),
		logger:       logger,
		now:          time.Now,
		reminderLead: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Validator exposes the shared validator so callers validate with the same rules.
func (m *Manager) Validator() *validator.Validate {
	return m.validate
}

type CreateParams struct {
	UserID uuid.UUID
	Room   domain.Room
	Amount decimal.Decimal
	Input  domain.BookingInput
}

// Create validates the stay, re-checks availability inside tx and stores a
// WAITING_FOR_PAYMENT booking.
func (m *Manager) Create(ctx context.Context, tx ports.Tx, p CreateParams) (*domain.Booking, error) {
	checkIn, checkOut, err := m.validateStay(p.Room, p.Input)
	if err != nil {
		return nil, err
	}
	if !p.Amount.IsPositive() {
		return nil, errors.Wrapf(domain.ErrValidation, "amount %s must be positive", p.Amount)
	}

	ok, err := m.checker.Check(ctx, tx, p.Room.ID, checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(domain.ErrRoomUnavailable, "room %d %s..%s",
			p.Room.ID, checkIn.Format(time.DateOnly), checkOut.Format(time.DateOnly))
	}

	now := m.now().UTC()
	b := &domain.Booking{
		ID:           uuid.New(),
		UserID:       p.UserID,
		TenantID:     p.Room.TenantID,
		PropertyID:   p.Room.PropertyID,
		PropertyName: p.Room.PropertyName,
		RoomID:       p.Room.ID,
		CheckIn:      checkIn,
		CheckOut:     checkOut,
		Adults:       p.Input.Adults,
		Children:     p.Input.Children,
		Infants:      p.Input.Infants,
		Amount:       p.Amount,
		Status:       domain.BookingWaitingForPayment,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.Bookings().Insert(ctx, b); err != nil {
		return nil, errors.Wrapf(err, "insert booking for room %d", p.Room.ID)
	}
	return b, nil
}

func (m *Manager) validateStay(room domain.Room, in domain.BookingInput) (time.Time, time.Time, error) {
	if err := m.validate.Struct(in); err != nil {
		return time.Time{}, time.Time{}, domain.Validation(err)
	}
	checkIn, checkOut := domain.Date(in.CheckIn), domain.Date(in.CheckOut)
	if in.CheckIn.IsZero() || in.CheckOut.IsZero() || !checkOut.After(checkIn) {
		return time.Time{}, time.Time{}, errors.Wrapf(domain.ErrInvalidDateRange, "%s..%s",
			checkIn.Format(time.DateOnly), checkOut.Format(time.DateOnly))
	}
	if checkIn.Before(domain.Date(m.now())) {
		return time.Time{}, time.Time{}, errors.Wrapf(domain.ErrValidation, "check-in %s is in the past", checkIn.Format(time.DateOnly))
	}
	if room.Capacity > 0 && in.Adults+in.Children > room.Capacity {
		return time.Time{}, time.Time{}, errors.Wrapf(domain.ErrValidation, "room %d sleeps %d, got %d guests",
			room.ID, room.Capacity, in.Adults+in.Children)
	}
	return checkIn, checkOut, nil
}

// CreateItem attaches an item, optionally carrying a stay extension date
// that must fall after the current check-out.
func (m *Manager) CreateItem(ctx context.Context, tx ports.Tx, b *domain.Booking, extendTo *time.Time) (*domain.BookingItem, error) {
	item := &domain.BookingItem{
		ID:        uuid.New(),
		BookingID: b.ID,
		CreatedAt: m.now().UTC(),
	}
	if extendTo != nil {
		d := domain.Date(*extendTo)
		if !d.After(b.CheckOut) {
			return nil, errors.Wrapf(domain.ErrValidation, "extension %s must be after check-out %s",
				d.Format(time.DateOnly), b.CheckOut.Format(time.DateOnly))
		}
		item.ExtendTo = &d
	}
	if err := tx.Bookings().InsertItem(ctx, item); err != nil {
		return nil, errors.Wrapf(err, "insert item for booking %s", b.ID)
	}
	return item, nil
}

func (m *Manager) CreateRequest(ctx context.Context, tx ports.Tx, b *domain.Booking, prefs domain.StayPreferences) (*domain.BookingRequest, error) {
	if err := m.validate.Struct(prefs); err != nil {
		return nil, domain.Validation(err)
	}
	req := &domain.BookingRequest{
		ID:              uuid.New(),
		BookingID:       b.ID,
		StayPreferences: prefs,
		CreatedAt:       m.now().UTC(),
	}
	if err := tx.Bookings().InsertRequest(ctx, req); err != nil {
		return nil, errors.Wrapf(err, "insert request for booking %s", b.ID)
	}
	return req, nil
}

// Transition moves b to status "to" inside tx. The write is conditional on
// the status and version read earlier in the same transaction, and b is
// updated in place on success.
func (m *Manager) Transition(ctx context.Context, tx ports.Tx, b *domain.Booking, to domain.BookingStatus) (domain.AuditEntry, error) {
	now := m.now().UTC()
	if !b.CanTransitionTo(to, now) {
		return domain.AuditEntry{}, errors.Wrapf(domain.ErrIllegalTransition, "booking %s: %s -> %s", b.ID, b.Status, to)
	}

	next := *b
	next.Status = to
	next.Version = b.Version + 1
	next.UpdatedAt = now
	if err := tx.Bookings().Update(ctx, &next, b.Status, b.Version); err != nil {
		return domain.AuditEntry{}, errors.Wrapf(err, "update booking %s", b.ID)
	}
	if to.ReleasesRoom() {
		if err := tx.Bookings().ReleaseRoom(ctx, b.ID); err != nil {
			return domain.AuditEntry{}, errors.Wrapf(err, "release room for booking %s", b.ID)
		}
	}

	change := domain.StatusChange{ID: b.ID, From: string(b.Status), To: string(to), At: now}
	ev, err := domain.NewOutboxEvent("booking", b.ID, domain.EventBookingStatusChanged, change)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	if err := tx.Outbox().Append(ctx, ev); err != nil {
		return domain.AuditEntry{}, errors.Wrap(err, "append booking event")
	}

	entry := domain.AuditEntry{Entity: "booking", EntityID: b.ID, From: change.From, To: change.To, At: now}
	*b = next
	return entry, nil
}

// UpdateStatus applies a single transition in its own unit of work.
func (m *Manager) UpdateStatus(ctx context.Context, id uuid.UUID, to domain.BookingStatus) (*domain.Booking, error) {
	var (
		b     *domain.Booking
		entry domain.AuditEntry
	)
	err := m.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		if b, err = tx.Bookings().Get(ctx, id); err != nil {
			return errors.Wrapf(err, "get booking %s", id)
		}
		entry, err = m.Transition(ctx, tx, b, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.recorder.Record(ctx, audit.ActorSystem, entry)
	return b, nil
}

func (m *Manager) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var b *domain.Booking
	err := m.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		b, err = tx.Bookings().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "find booking %s", id)
	}
	return b, nil
}

// GetBookingByID returns the booking with its items, stay request and payment.
func (m *Manager) GetBookingByID(ctx context.Context, id uuid.UUID) (*domain.BookingDetails, error) {
	var d domain.BookingDetails
	err := m.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		b, err := tx.Bookings().Get(ctx, id)
		if err != nil {
			return err
		}
		d.Booking = *b
		if d.Items, err = tx.Bookings().Items(ctx, id); err != nil {
			return err
		}
		req, err := tx.Bookings().Request(ctx, id)
		switch {
		case err == nil:
			d.Request = req
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		p, err := tx.Payments().GetByBooking(ctx, id)
		switch {
		case err == nil:
			d.Payment = p
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get booking %s", id)
	}
	return &d, nil
}

func (m *Manager) GetUserBookings(ctx context.Context, userID uuid.UUID, f domain.BookingFilter) (domain.Page[domain.Booking], error) {
	return m.list(ctx, f, func(ctx context.Context, tx ports.Tx, f domain.BookingFilter) ([]domain.Booking, int, error) {
		return tx.Bookings().ListByUser(ctx, userID, f)
	})
}

func (m *Manager) GetTenantBookings(ctx context.Context, tenantID uuid.UUID, f domain.BookingFilter) (domain.Page[domain.Booking], error) {
	return m.list(ctx, f, func(ctx context.Context, tx ports.Tx, f domain.BookingFilter) ([]domain.Booking, int, error) {
		return tx.Bookings().ListByTenant(ctx, tenantID, f)
	})
}

type lister func(ctx context.Context, tx ports.Tx, f domain.BookingFilter) ([]domain.Booking, int, error)

func (m *Manager) list(ctx context.Context, f domain.BookingFilter, fn lister) (domain.Page[domain.Booking], error) {
	f = f.Normalize()
	page := domain.Page[domain.Booking]{Page: f.Page, Size: f.Size}
	err := m.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		page.Items, page.Total, err = fn(ctx, tx, f)
		return err
	})
	if err != nil {
		return domain.Page[domain.Booking]{}, errors.Wrap(err, "list bookings")
	}
	if page.Items == nil {
		page.Items = []domain.Booking{}
	}
	return page, nil
}

// UserBookingReminder sends a reminder for each confirmed booking checking in
// within the lead window starting tomorrow. It writes nothing.
func (m *Manager) UserBookingReminder(ctx context.Context) (int, error) {
	from := domain.Date(m.now()).AddDate(0, 0, 1)
	to := from.Add(m.reminderLead)

	var upcoming []domain.Booking
	err := m.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		upcoming, err = tx.Bookings().ListCheckInsBetween(ctx, from, to, domain.BookingConfirmed)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, "list upcoming check-ins")
	}

	sent := 0
	for _, b := range upcoming {
		log := m.logger.WithField("booking_id", b.ID.String())
		user, err := m.catalog.GetUser(ctx, b.UserID)
		if err != nil {
			log.WithError(err).Warn("reminder skipped: user lookup failed")
			continue
		}
		if err := m.notifier.SendReminder(ctx, *user, b); err != nil {
			log.WithError(err).Warn("reminder not sent")
			continue
		}
		sent++
	}
	return sent, nil
}

// CompleteStays marks confirmed bookings whose check-out day has arrived as
// DONE, one unit of work per booking.
func (m *Manager) CompleteStays(ctx context.Context) (int, error) {
	today := domain.Date(m.now())

	var due []domain.Booking
	err := m.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		due, err = tx.Bookings().ListCheckOutsThrough(ctx, today, domain.BookingConfirmed)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, "list finished stays")
	}

	done := 0
	for _, b := range due {
		if _, err := m.UpdateStatus(ctx, b.ID, domain.BookingDone); err != nil {
			m.logger.WithError(err).WithField("booking_id", b.ID.String()).Warn("stay completion failed")
			continue
		}
		done++
	}
	return done, nil
}

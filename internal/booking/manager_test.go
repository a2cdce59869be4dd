package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/property-bookings/internal/adapters/memory"
	"github.com/robertarktes/property-bookings/internal/audit"
	"github.com/robertarktes/property-bookings/internal/availability"
	"github.com/robertarktes/property-bookings/internal/booking"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/ports"
	"github.com/robertarktes/property-bookings/internal/ports/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	clock    = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	tenantID = uuid.New()
	room     = domain.Room{
		ID:           10,
		PropertyID:   1,
		PropertyName: "Seaside Villa",
		TenantID:     tenantID,
		Name:         "Deluxe",
		Capacity:     2,
		NightlyRate:  decimal.RequireFromString("75.00"),
	}
)

type fixture struct {
	store    *memory.Store
	catalog  *memory.Catalog
	notifier *mocks.Notifier
	manager  *booking.Manager
}

func newFixture(t *testing.T, notifier *mocks.Notifier) *fixture {
	t.Helper()
	store := memory.NewStore()
	catalog := memory.NewCatalog()
	catalog.PutRoom(room)
	if notifier == nil {
		notifier = mocks.NewNotifier()
	}
	logger := observability.NewDiscardLogger()
	m := booking.NewManager(store, availability.NewChecker(store), catalog, notifier,
		audit.NewRecorder(mocks.NewAuditor(), logger), logger,
		booking.WithClock(func() time.Time { return clock }))
	return &fixture{store: store, catalog: catalog, notifier: notifier, manager: m}
}

func stay(fromDay, toDay int) domain.BookingInput {
	return domain.BookingInput{
		CheckIn:  time.Date(2024, 6, fromDay, 0, 0, 0, 0, time.UTC),
		CheckOut: time.Date(2024, 6, toDay, 0, 0, 0, 0, time.UTC),
		Adults:   2,
	}
}

func (f *fixture) create(t *testing.T, userID uuid.UUID, in domain.BookingInput) *domain.Booking {
	t.Helper()
	var b *domain.Booking
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		var err error
		b, err = f.manager.Create(ctx, tx, booking.CreateParams{
			UserID: userID, Room: room, Amount: decimal.RequireFromString("150.00"), Input: in,
		})
		return err
	}))
	return b
}

func (f *fixture) tryCreate(userID uuid.UUID, in domain.BookingInput, amount decimal.Decimal) error {
	return f.store.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		_, err := f.manager.Create(ctx, tx, booking.CreateParams{UserID: userID, Room: room, Amount: amount, Input: in})
		return err
	})
}

func TestCreate_StoresWaitingForPayment(t *testing.T) {
	f := newFixture(t, nil)
	user := uuid.New()

	b := f.create(t, user, stay(1, 3))

	assert.Equal(t, domain.BookingWaitingForPayment, b.Status)
	assert.Equal(t, tenantID, b.TenantID)
	assert.Equal(t, "Seaside Villa", b.PropertyName)
	assert.Equal(t, 2, b.Nights())

	got, err := f.manager.FindByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, user, got.UserID)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, nil)
	amount := decimal.RequireFromString("150.00")

	past := stay(1, 3)
	past.CheckIn = clock.AddDate(0, 0, -2)
	past.CheckOut = clock.AddDate(0, 0, 1)

	crowded := stay(1, 3)
	crowded.Adults = 2
	crowded.Children = 1

	negative := stay(1, 3)
	negative.Infants = -1

	tests := []struct {
		name   string
		in     domain.BookingInput
		amount decimal.Decimal
		want   error
	}{
		{"check-out equals check-in", stay(3, 3), amount, domain.ErrInvalidDateRange},
		{"check-out before check-in", stay(5, 3), amount, domain.ErrInvalidDateRange},
		{"check-in in the past", past, amount, domain.ErrValidation},
		{"over capacity", crowded, amount, domain.ErrValidation},
		{"negative guests", negative, amount, domain.ErrValidation},
		{"zero amount", stay(1, 3), decimal.Zero, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.tryCreate(uuid.New(), tt.in, tt.amount)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreate_RejectsOverlap(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, uuid.New(), stay(1, 4))

	err := f.tryCreate(uuid.New(), stay(3, 5), decimal.RequireFromString("150.00"))
	assert.ErrorIs(t, err, domain.ErrRoomUnavailable)

	require.NoError(t, f.tryCreate(uuid.New(), stay(4, 6), decimal.RequireFromString("150.00")))
}

func TestCreateItemAndRequest(t *testing.T) {
	f := newFixture(t, nil)
	b := f.create(t, uuid.New(), stay(1, 3))
	ctx := context.Background()

	tooEarly := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	err := f.store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		_, err := f.manager.CreateItem(ctx, tx, b, &tooEarly)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	extend := time.Date(2024, 6, 5, 15, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if _, err := f.manager.CreateItem(ctx, tx, b, &extend); err != nil {
			return err
		}
		_, err := f.manager.CreateRequest(ctx, tx, b, domain.StayPreferences{CheckInTime: "14:00", NonSmoking: true})
		return err
	}))

	err = f.store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		_, err := f.manager.CreateRequest(ctx, tx, b, domain.StayPreferences{CheckInTime: "2pm"})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	d, err := f.manager.GetBookingByID(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, d.Items, 1)
	assert.Equal(t, time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), *d.Items[0].ExtendTo)
	require.NotNil(t, d.Request)
	assert.True(t, d.Request.NonSmoking)
	assert.Nil(t, d.Payment)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("legal path bumps version and emits event", func(t *testing.T) {
		f := newFixture(t, nil)
		b := f.create(t, uuid.New(), stay(1, 3))

		got, err := f.manager.UpdateStatus(ctx, b.ID, domain.BookingWaitingForConfirmation)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingWaitingForConfirmation, got.Status)
		assert.Equal(t, int64(1), got.Version)

		events := f.store.Outbox()
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventBookingStatusChanged, events[0].EventType)
	})

	t.Run("terminal status is final", func(t *testing.T) {
		f := newFixture(t, nil)
		b := f.create(t, uuid.New(), stay(1, 3))
		_, err := f.manager.UpdateStatus(ctx, b.ID, domain.BookingCancelled)
		require.NoError(t, err)

		_, err = f.manager.UpdateStatus(ctx, b.ID, domain.BookingWaitingForConfirmation)
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)

		got, err := f.manager.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingCancelled, got.Status)
	})

	t.Run("skipping confirmation is illegal", func(t *testing.T) {
		f := newFixture(t, nil)
		b := f.create(t, uuid.New(), stay(1, 3))
		_, err := f.manager.UpdateStatus(ctx, b.ID, domain.BookingConfirmed)
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	})

	t.Run("cancelled booking frees the room", func(t *testing.T) {
		f := newFixture(t, nil)
		b := f.create(t, uuid.New(), stay(1, 3))
		_, err := f.manager.UpdateStatus(ctx, b.ID, domain.BookingCancelled)
		require.NoError(t, err)

		f.create(t, uuid.New(), stay(1, 3))
	})

	t.Run("unknown booking", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.manager.UpdateStatus(ctx, uuid.New(), domain.BookingCancelled)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestTransition_StaleVersionConflicts(t *testing.T) {
	f := newFixture(t, nil)
	b := f.create(t, uuid.New(), stay(1, 3))
	stale := *b

	_, err := f.manager.UpdateStatus(context.Background(), b.ID, domain.BookingWaitingForConfirmation)
	require.NoError(t, err)

	err = f.store.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		_, err := f.manager.Transition(ctx, tx, &stale, domain.BookingCancelled)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestListings(t *testing.T) {
	f := newFixture(t, nil)
	user := uuid.New()
	for d := 1; d <= 9; d += 2 {
		f.create(t, user, stay(d, d+1))
	}
	f.create(t, uuid.New(), stay(20, 22))
	ctx := context.Background()

	page, err := f.manager.GetUserBookings(ctx, user, domain.BookingFilter{Page: 2, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Items, 2)

	page, err = f.manager.GetUserBookings(ctx, user, domain.BookingFilter{Search: "nowhere"})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Items)

	page, err = f.manager.GetTenantBookings(ctx, tenantID, domain.BookingFilter{Search: "seaside"})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Equal(t, domain.DefaultPageSize, page.Size)
}

func confirm(t *testing.T, f *fixture, id uuid.UUID) {
	t.Helper()
	_, err := f.manager.UpdateStatus(context.Background(), id, domain.BookingWaitingForConfirmation)
	require.NoError(t, err)
	_, err = f.manager.UpdateStatus(context.Background(), id, domain.BookingConfirmed)
	require.NoError(t, err)
}

func TestUserBookingReminder(t *testing.T) {
	notifier := &mocks.Notifier{}
	f := newFixture(t, notifier)
	guest := domain.UserView{ID: uuid.New(), Name: "Ana", Email: "ana@example.com", Kind: domain.UserKindTraveler}
	f.catalog.PutUser(guest)

	tomorrow := domain.BookingInput{CheckIn: clock.AddDate(0, 0, 1), CheckOut: clock.AddDate(0, 0, 3), Adults: 1}
	later := domain.BookingInput{CheckIn: clock.AddDate(0, 0, 5), CheckOut: clock.AddDate(0, 0, 6), Adults: 1}
	unpaid := domain.BookingInput{CheckIn: clock.AddDate(0, 0, 1), CheckOut: clock.AddDate(0, 0, 2), Adults: 1}

	due := f.create(t, guest.ID, tomorrow)
	confirm(t, f, due.ID)
	confirm(t, f, f.create(t, guest.ID, later).ID)
	unpaidRoom := room
	unpaidRoom.ID = 11
	f.catalog.PutRoom(unpaidRoom)
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		_, err := f.manager.Create(ctx, tx, booking.CreateParams{UserID: guest.ID, Room: unpaidRoom, Amount: decimal.NewFromInt(75), Input: unpaid})
		return err
	}))

	notifier.On("SendReminder", mock.Anything, guest, mock.MatchedBy(func(b domain.Booking) bool {
		return b.ID == due.ID
	})).Return(nil).Once()

	sent, err := f.manager.UserBookingReminder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	notifier.AssertExpectations(t)
}

func TestCompleteStays(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// Seed a confirmed stay that ended yesterday; Create refuses past dates.
	ended := domain.Booking{
		ID: uuid.New(), UserID: uuid.New(), RoomID: room.ID,
		CheckIn: domain.Date(clock).AddDate(0, 0, -3), CheckOut: domain.Date(clock).AddDate(0, 0, -1),
		Status: domain.BookingConfirmed, Amount: decimal.NewFromInt(150),
	}
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.Bookings().Insert(ctx, &ended)
	}))
	upcoming := f.create(t, uuid.New(), stay(1, 3))
	confirm(t, f, upcoming.ID)

	done, err := f.manager.CompleteStays(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	got, err := f.manager.FindByID(ctx, ended.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingDone, got.Status)

	got, err = f.manager.FindByID(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, got.Status)
}

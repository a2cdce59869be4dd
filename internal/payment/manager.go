// Package payment owns payment records and keeps the booking in step with
// every payment status change.
package payment

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/property-bookings/internal/audit"
	"github.com/robertarktes/property-bookings/internal/booking"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/ports"
	"github.com/shopspring/decimal"
)

const DefaultWindow = 30 * time.Minute

type Manager struct {
	uow      ports.UnitOfWork
	bookings *booking.Manager
	catalog  ports.Catalog
	notifier ports.Notifier
	recorder *audit.Recorder
	logger   observability.Logger
	now      func() time.Time
	window   time.Duration
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithWindow sets how long a new payment stays payable.
func WithWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.window = d
		}
	}
}

func NewManager(
	uow ports.UnitOfWork,
	bookings *booking.Manager,
	catalog ports.Catalog,
	notifier ports.Notifier,
	recorder *audit.Recorder,
	logger observability.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		uow:      uow,
		bookings: bookings,
		catalog:  catalog,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		window:   DefaultWindow,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores the single payment of b. An empty status means PENDING.
func (m *Manager) Create(ctx context.Context, tx ports.Tx, b *domain.Booking, amount decimal.Decimal,
	method domain.PaymentMethod, status domain.PaymentStatus, bankVA *string) (*domain.Payment, error) {
	if !amount.IsPositive() {
		return nil, errors.Wrapf(domain.ErrValidation, "payment amount %s must be positive", amount)
	}
	if !method.IsValid() {
		return nil, errors.Wrapf(domain.ErrValidation, "unknown payment method %q", method)
	}
	if status == "" {
		status = domain.PaymentPending
	}
	if !status.IsOpen() {
		return nil, errors.Wrapf(domain.ErrValidation, "payment cannot start as %s", status)
	}
	if method == domain.MethodVirtualAccount && (bankVA == nil || strings.TrimSpace(*bankVA) == "") {
		return nil, errors.Wrap(domain.ErrValidation, "virtual account payment needs a bank")
	}

	now := m.now().UTC()
	p := &domain.Payment{
		ID:        uuid.New(),
		BookingID: b.ID,
		OrderID:   b.ID.String(),
		Amount:    amount,
		Method:    method,
		Status:    status,
		BankVA:    bankVA,
		ExpiresAt: now.Add(m.window),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Payments().Insert(ctx, p); err != nil {
		return nil, errors.Wrapf(err, "insert payment for booking %s", b.ID)
	}
	return p, nil
}

// Transition moves p to "to" with a write conditional on the status and
// version read earlier in tx. p is updated in place on success.
func (m *Manager) Transition(ctx context.Context, tx ports.Tx, p *domain.Payment, to domain.PaymentStatus) (domain.AuditEntry, error) {
	if !p.Status.CanTransitionTo(to) {
		return domain.AuditEntry{}, errors.Wrapf(domain.ErrIllegalTransition, "payment %s: %s -> %s", p.ID, p.Status, to)
	}
	now := m.now().UTC()
	next := *p
	next.Status = to
	next.Version = p.Version + 1
	next.UpdatedAt = now
	if err := tx.Payments().Update(ctx, &next, p.Status, p.Version); err != nil {
		return domain.AuditEntry{}, errors.Wrapf(err, "update payment %s", p.ID)
	}

	change := domain.StatusChange{ID: p.ID, From: string(p.Status), To: string(to), At: now}
	ev, err := domain.NewOutboxEvent("payment", p.ID, domain.EventPaymentStatusChanged, change)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	if err := tx.Outbox().Append(ctx, ev); err != nil {
		return domain.AuditEntry{}, errors.Wrap(err, "append payment event")
	}

	entry := domain.AuditEntry{Entity: "payment", EntityID: p.ID, From: change.From, To: change.To, At: now}
	*p = next
	return entry, nil
}

// ApplyStatus moves the payment to "to" and carries the booking along:
//
//	WAITING_FOR_CONFIRMATION -> booking WAITING_FOR_CONFIRMATION
//	CONFIRMED                -> booking CONFIRMED (via WAITING_FOR_CONFIRMATION)
//	REJECTED                 -> booking REJECTED, or CANCELLED if still unpaid
//	EXPIRED                  -> booking CANCELLED when it can still be cancelled
func (m *Manager) ApplyStatus(ctx context.Context, tx ports.Tx, p *domain.Payment, b *domain.Booking, to domain.PaymentStatus) ([]domain.AuditEntry, error) {
	if p.BookingID != b.ID {
		return nil, errors.Newf("payment %s does not belong to booking %s", p.ID, b.ID)
	}
	entry, err := m.Transition(ctx, tx, p, to)
	if err != nil {
		return nil, err
	}
	entries := []domain.AuditEntry{entry}

	var path []domain.BookingStatus
	switch to {
	case domain.PaymentWaitingForConfirmation:
		path = []domain.BookingStatus{domain.BookingWaitingForConfirmation}
	case domain.PaymentConfirmed:
		if b.Status == domain.BookingWaitingForPayment {
			path = append(path, domain.BookingWaitingForConfirmation)
		}
		path = append(path, domain.BookingConfirmed)
	case domain.PaymentRejected:
		if b.Status == domain.BookingWaitingForPayment {
			path = []domain.BookingStatus{domain.BookingCancelled}
		} else {
			path = []domain.BookingStatus{domain.BookingRejected}
		}
	case domain.PaymentExpired:
		if !b.CanTransitionTo(domain.BookingCancelled, m.now()) {
			return entries, nil
		}
		path = []domain.BookingStatus{domain.BookingCancelled}
	}

	for _, status := range path {
		e, err := m.bookings.Transition(ctx, tx, b, status)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// AttachProof records the proof reference and moves payment and booking to
// WAITING_FOR_CONFIRMATION. Expired payments are refused without any write.
func (m *Manager) AttachProof(ctx context.Context, tx ports.Tx, p *domain.Payment, b *domain.Booking, proofRef string) ([]domain.AuditEntry, error) {
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return nil, errors.Wrap(domain.ErrValidation, "proof reference is required")
	}
	if p.Status == domain.PaymentExpired || p.ExpiredAt(m.now()) {
		return nil, errors.Wrapf(domain.ErrPaymentExpired, "payment %s expired at %s", p.ID, p.ExpiresAt.Format(time.RFC3339))
	}
	if p.Status != domain.PaymentPending {
		return nil, errors.Wrapf(domain.ErrIllegalTransition, "payment %s is %s", p.ID, p.Status)
	}
	p.ProofRef = &proofRef
	return m.ApplyStatus(ctx, tx, p, b, domain.PaymentWaitingForConfirmation)
}

func (m *Manager) UploadProof(ctx context.Context, bookingID uuid.UUID, proofRef string) (*domain.Payment, error) {
	var (
		p       *domain.Payment
		b       *domain.Booking
		entries []domain.AuditEntry
	)
	err := m.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		if p, err = tx.Payments().GetByBooking(ctx, bookingID); err != nil {
			return errors.Wrapf(err, "payment for booking %s", bookingID)
		}
		if b, err = tx.Bookings().Get(ctx, bookingID); err != nil {
			return errors.Wrapf(err, "get booking %s", bookingID)
		}
		entries, err = m.AttachProof(ctx, tx, p, b, proofRef)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.AfterCommit(ctx, b.UserID.String(), b, p, entries)
	return p, nil
}

// UpdateStatus applies a payment status and its booking cascade in one unit of work.
func (m *Manager) UpdateStatus(ctx context.Context, paymentID uuid.UUID, to domain.PaymentStatus) (*domain.Payment, error) {
	var (
		p       *domain.Payment
		b       *domain.Booking
		entries []domain.AuditEntry
	)
	err := m.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		if p, b, err = m.load(ctx, tx, paymentID); err != nil {
			return err
		}
		entries, err = m.ApplyStatus(ctx, tx, p, b, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.AfterCommit(ctx, audit.ActorSystem, b, p, entries)
	return p, nil
}

// TenantReject refuses a payment awaiting the tenant's review.
func (m *Manager) TenantReject(ctx context.Context, tx ports.Tx, p *domain.Payment, b *domain.Booking) ([]domain.AuditEntry, error) {
	if b.Status != domain.BookingWaitingForConfirmation {
		return nil, errors.Wrapf(domain.ErrIllegalTransition, "booking %s is %s", b.ID, b.Status)
	}
	return m.ApplyStatus(ctx, tx, p, b, domain.PaymentRejected)
}

func (m *Manager) TenantRejectPayment(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	var (
		p       *domain.Payment
		b       *domain.Booking
		entries []domain.AuditEntry
	)
	err := m.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		if p, b, err = m.load(ctx, tx, paymentID); err != nil {
			return err
		}
		entries, err = m.TenantReject(ctx, tx, p, b)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.AfterCommit(ctx, b.TenantID.String(), b, p, entries)
	return p, nil
}

func (m *Manager) FindExpiredPending(ctx context.Context) ([]domain.Payment, error) {
	var res []domain.Payment
	now := m.now().UTC()
	err := m.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		res, err = tx.Payments().ListExpiredPending(ctx, now)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "list expired payments")
	}
	return res, nil
}

func (m *Manager) load(ctx context.Context, tx ports.Tx, paymentID uuid.UUID) (*domain.Payment, *domain.Booking, error) {
	p, err := tx.Payments().Get(ctx, paymentID)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "get payment %s", paymentID)
	}
	b, err := tx.Bookings().Get(ctx, p.BookingID)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "get booking %s", p.BookingID)
	}
	return p, b, nil
}

// AfterCommit records audit entries and, when the payment changed, tells the
// guest. Failures are logged only.
func (m *Manager) AfterCommit(ctx context.Context, actor string, b *domain.Booking, p *domain.Payment, entries []domain.AuditEntry) {
	m.recorder.Record(ctx, actor, entries...)

	changed := false
	for _, e := range entries {
		if e.Entity == "payment" {
			changed = true
			break
		}
	}
	if !changed || m.notifier == nil {
		return
	}
	log := m.logger.WithFields(map[string]interface{}{
		"booking_id": b.ID.String(),
		"payment_id": p.ID.String(),
	})
	user, err := m.catalog.GetUser(ctx, b.UserID)
	if err != nil {
		log.WithError(err).Warn("payment notice skipped: user lookup failed")
		return
	}
	if err := m.notifier.SendPaymentStatusChange(ctx, *user, *p); err != nil {
		log.WithError(err).Warn("payment notice not sent")
	}
}

// Package transaction composes bookings and payments into the use cases
// exposed to travelers, tenants, the payment gateway and the expiry sweep.
// Every use case is one unit of work; audit and notifications follow commit.
package transaction

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/property-bookings/internal/audit"
	"github.com/robertarktes/property-bookings/internal/booking"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/payment"
	"github.com/robertarktes/property-bookings/internal/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const actorGateway = "gateway"

type Orchestrator struct {
	uow      ports.UnitOfWork
	catalog  ports.Catalog
	bookings *booking.Manager
	payments *payment.Manager
	logger   observability.Logger
	tracer   trace.Tracer
	now      func() time.Time

	sweepWorkers int
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSweepWorkers bounds how many expired payments are handled at once.
func WithSweepWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sweepWorkers = n
		}
	}
}

func NewOrchestrator(
	uow ports.UnitOfWork,
	catalog ports.Catalog,
	bookings *booking.Manager,
	payments *payment.Manager,
	logger observability.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		uow:          uow,
		catalog:      catalog,
		bookings:     bookings,
		payments:     payments,
		logger:       logger,
		tracer:       observability.Tracer("transaction"),
		now:          time.Now,
		sweepWorkers: 4,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "transaction."+name, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateTransaction books the room and opens its payment in one unit of work.
// Nothing is persisted unless both succeed.
func (o *Orchestrator) CreateTransaction(ctx context.Context, req domain.TransactionRequest, userID uuid.UUID, roomID int64) (_ *domain.TransactionView, err error) {
	ctx, span := o.start(ctx, "CreateTransaction", attribute.Int64("room_id", roomID))
	defer func() { end(span, err) }()

	if err := o.bookings.Validator().Struct(req); err != nil {
		return nil, domain.Validation(err)
	}
	room, err := o.catalog.GetRoom(ctx, roomID)
	if err != nil {
		return nil, errors.Wrapf(err, "room %d", roomID)
	}
	nights := int(domain.Date(req.CheckOut).Sub(domain.Date(req.CheckIn)) / (24 * time.Hour))
	amount := room.Quote(nights)

	var bank *string
	if b := strings.TrimSpace(req.Bank); b != "" {
		bank = &b
	}

	view := &domain.TransactionView{}
	err = o.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		b, err := o.bookings.Create(ctx, tx, booking.CreateParams{UserID: userID, Room: *room, Amount: amount, Input: req.BookingInput})
		if err != nil {
			return err
		}
		item, err := o.bookings.CreateItem(ctx, tx, b, req.ExtendTo)
		if err != nil {
			return err
		}
		view.Items = []domain.BookingItem{*item}
		if req.Preferences != nil {
			if view.Request, err = o.bookings.CreateRequest(ctx, tx, b, *req.Preferences); err != nil {
				return err
			}
		}
		p, err := o.payments.Create(ctx, tx, b, amount, req.Method, domain.PaymentPending, bank)
		if err != nil {
			return err
		}
		view.Booking, view.Payment = *b, *p
		view.Status = domain.DisplayStatus(b.Status, p.Status)

		ev, err := domain.NewOutboxEvent("booking", b.ID, domain.EventTransactionCreated, view)
		if err != nil {
			return err
		}
		return tx.Outbox().Append(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("booking_id", view.Booking.ID.String()))
	o.payments.AfterCommit(ctx, userID.String(), &view.Booking, &view.Payment, []domain.AuditEntry{
		{Entity: "booking", EntityID: view.Booking.ID, To: string(view.Booking.Status), At: view.Booking.CreatedAt},
		{Entity: "payment", EntityID: view.Payment.ID, To: string(view.Payment.Status), At: view.Payment.CreatedAt},
	})
	o.logger.WithFields(map[string]interface{}{
		"booking_id": view.Booking.ID.String(),
		"payment_id": view.Payment.ID.String(),
		"amount":     amount.StringFixed(2),
	}).Info("transaction created")
	return view, nil
}

// NotificationHandler applies a gateway callback. Deliveries are at least
// once and unordered: a status the payment already has, or any code for a
// payment that is already CONFIRMED, is answered with the current view.
func (o *Orchestrator) NotificationHandler(ctx context.Context, n domain.GatewayNotification) (_ *domain.TransactionView, err error) {
	ctx, span := o.start(ctx, "NotificationHandler",
		attribute.String("order_id", n.OrderID), attribute.String("status_code", n.StatusCode))
	defer func() { end(span, err) }()

	log := o.logger.WithFields(map[string]interface{}{
		"order_id":       n.OrderID,
		"transaction_id": n.TransactionID,
		"status_code":    n.StatusCode,
	})
	target, err := domain.MapGatewayStatus(n.StatusCode)
	if err != nil {
		observability.GatewayNotifications.WithLabelValues(n.StatusCode, "unrecognized").Inc()
		log.WithError(err).Warn("gateway notification ignored")
		return nil, err
	}

	var (
		b       *domain.Booking
		p       *domain.Payment
		entries []domain.AuditEntry
	)
	err = o.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		if p, err = tx.Payments().GetByOrderID(ctx, n.OrderID); err != nil {
			return errors.Wrapf(err, "payment for order %s", n.OrderID)
		}
		if b, err = tx.Bookings().Get(ctx, p.BookingID); err != nil {
			return errors.Wrapf(err, "get booking %s", p.BookingID)
		}
		if p.Status == target || p.Status == domain.PaymentConfirmed || target == domain.PaymentPending {
			return nil
		}
		entries, err = o.payments.ApplyStatus(ctx, tx, p, b, target)
		return err
	})
	if err != nil {
		observability.GatewayNotifications.WithLabelValues(n.StatusCode, "error").Inc()
		log.WithError(err).Warn("gateway notification failed")
		return nil, err
	}

	if len(entries) == 0 {
		observability.GatewayNotifications.WithLabelValues(n.StatusCode, "duplicate").Inc()
		log.Debug("gateway notification already applied")
	} else {
		observability.GatewayNotifications.WithLabelValues(n.StatusCode, "applied").Inc()
		o.payments.AfterCommit(ctx, actorGateway, b, p, entries)
	}
	return domain.NewTransactionView(*b, *p), nil
}

// UserCancelTransaction lets the guest walk away before the stay is
// confirmed. An open payment is closed as EXPIRED. Strangers and bookings
// past WAITING_FOR_CONFIRMATION are both refused as unauthorized.
func (o *Orchestrator) UserCancelTransaction(ctx context.Context, bookingID, userID uuid.UUID) (_ *domain.TransactionView, err error) {
	ctx, span := o.start(ctx, "UserCancelTransaction", attribute.String("booking_id", bookingID.String()))
	defer func() { end(span, err) }()

	return o.mutate(ctx, bookingID, userID.String(), func(ctx context.Context, tx ports.Tx, b *domain.Booking, p *domain.Payment) ([]domain.AuditEntry, error) {
		if !b.OwnedBy(userID) {
			return nil, errors.Wrapf(domain.ErrUnauthorized, "user %s does not own booking %s", userID, b.ID)
		}
		if b.Status != domain.BookingWaitingForPayment && b.Status != domain.BookingWaitingForConfirmation {
			return nil, errors.Wrapf(domain.ErrUnauthorized, "booking %s is %s and can no longer be cancelled", b.ID, b.Status)
		}
		if p.Status.IsOpen() {
			p.GuestCancelled = true
			return o.payments.ApplyStatus(ctx, tx, p, b, domain.PaymentExpired)
		}
		e, err := o.bookings.Transition(ctx, tx, b, domain.BookingCancelled)
		if err != nil {
			return nil, err
		}
		return []domain.AuditEntry{e}, nil
	})
}

func (o *Orchestrator) TenantRejectTransaction(ctx context.Context, bookingID, userID uuid.UUID) (_ *domain.TransactionView, err error) {
	ctx, span := o.start(ctx, "TenantRejectTransaction", attribute.String("booking_id", bookingID.String()))
	defer func() { end(span, err) }()

	return o.mutate(ctx, bookingID, userID.String(), func(ctx context.Context, tx ports.Tx, b *domain.Booking, p *domain.Payment) ([]domain.AuditEntry, error) {
		if !b.HostedBy(userID) {
			return nil, errors.Wrapf(domain.ErrUnauthorized, "user %s does not host booking %s", userID, b.ID)
		}
		return o.payments.TenantReject(ctx, tx, p, b)
	})
}

// ApproveTransaction is the tenant accepting an uploaded proof.
func (o *Orchestrator) ApproveTransaction(ctx context.Context, bookingID, userID uuid.UUID) (_ *domain.TransactionView, err error) {
	ctx, span := o.start(ctx, "ApproveTransaction", attribute.String("booking_id", bookingID.String()))
	defer func() { end(span, err) }()

	return o.mutate(ctx, bookingID, userID.String(), func(ctx context.Context, tx ports.Tx, b *domain.Booking, p *domain.Payment) ([]domain.AuditEntry, error) {
		if !b.HostedBy(userID) {
			return nil, errors.Wrapf(domain.ErrUnauthorized, "user %s does not host booking %s", userID, b.ID)
		}
		if b.Status != domain.BookingWaitingForConfirmation {
			return nil, errors.Wrapf(domain.ErrIllegalTransition, "booking %s is %s", b.ID, b.Status)
		}
		return o.payments.ApplyStatus(ctx, tx, p, b, domain.PaymentConfirmed)
	})
}

// SubmitProof attaches the guest's payment proof.
func (o *Orchestrator) SubmitProof(ctx context.Context, bookingID, userID uuid.UUID, proofRef string) (_ *domain.TransactionView, err error) {
	ctx, span := o.start(ctx, "SubmitProof", attribute.String("booking_id", bookingID.String()))
	defer func() { end(span, err) }()

	return o.mutate(ctx, bookingID, userID.String(), func(ctx context.Context, tx ports.Tx, b *domain.Booking, p *domain.Payment) ([]domain.AuditEntry, error) {
		if !b.OwnedBy(userID) {
			return nil, errors.Wrapf(domain.ErrUnauthorized, "user %s does not own booking %s", userID, b.ID)
		}
		return o.payments.AttachProof(ctx, tx, p, b, proofRef)
	})
}

type mutation func(ctx context.Context, tx ports.Tx, b *domain.Booking, p *domain.Payment) ([]domain.AuditEntry, error)

// mutate loads booking and payment inside one unit of work, applies fn and
// runs the after-commit hooks.
func (o *Orchestrator) mutate(ctx context.Context, bookingID uuid.UUID, actor string, fn mutation) (*domain.TransactionView, error) {
	var (
		b       *domain.Booking
		p       *domain.Payment
		entries []domain.AuditEntry
	)
	err := o.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		if b, err = tx.Bookings().Get(ctx, bookingID); err != nil {
			return errors.Wrapf(err, "get booking %s", bookingID)
		}
		if p, err = tx.Payments().GetByBooking(ctx, bookingID); err != nil {
			return errors.Wrapf(err, "payment for booking %s", bookingID)
		}
		entries, err = fn(ctx, tx, b, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	o.payments.AfterCommit(ctx, actor, b, p, entries)
	return domain.NewTransactionView(*b, *p), nil
}

// AutoCancelTransaction expires every pending payment whose window has
// closed and cancels its booking. Each payment is re-read and re-checked in
// its own unit of work; failures are counted and the sweep goes on.
func (o *Orchestrator) AutoCancelTransaction(ctx context.Context) (report domain.SweepReport, err error) {
	ctx, span := o.start(ctx, "AutoCancelTransaction")
	defer func() { end(span, err) }()

	due, err := o.payments.FindExpiredPending(ctx)
	if err != nil {
		return report, err
	}
	report.Scanned = len(due)

	var mu sync.Mutex
	count := func(field *int, result string) {
		mu.Lock()
		*field++
		mu.Unlock()
		observability.SweepResults.WithLabelValues(result).Inc()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.sweepWorkers)
	for _, candidate := range due {
		id := candidate.ID
		g.Go(func() error {
			expired, err := o.expireOne(gctx, id)
			switch {
			case err != nil:
				count(&report.Failed, "failed")
				o.logger.WithError(err).WithField("payment_id", id.String()).Warn("auto-cancel failed")
			case expired:
				count(&report.Expired, "expired")
			default:
				count(&report.Skipped, "skipped")
			}
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("sweep.scanned", report.Scanned),
		attribute.Int("sweep.expired", report.Expired),
		attribute.Int("sweep.failed", report.Failed),
	)
	if report.Scanned > 0 {
		o.logger.WithFields(map[string]interface{}{
			"scanned": report.Scanned,
			"expired": report.Expired,
			"skipped": report.Skipped,
			"failed":  report.Failed,
		}).Info("auto-cancel sweep finished")
	}
	return report, nil
}

func (o *Orchestrator) expireOne(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	var (
		b       *domain.Booking
		p       *domain.Payment
		entries []domain.AuditEntry
	)
	err := o.uow.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		if p, err = tx.Payments().Get(ctx, paymentID); err != nil {
			return err
		}
		if !p.EligibleForExpiry(o.now()) {
			return nil
		}
		if b, err = tx.Bookings().Get(ctx, p.BookingID); err != nil {
			return err
		}
		entries, err = o.payments.ApplyStatus(ctx, tx, p, b, domain.PaymentExpired)
		return err
	})
	if err != nil || len(entries) == 0 {
		return false, err
	}
	o.payments.AfterCommit(ctx, audit.ActorSystem, b, p, entries)
	return true, nil
}

// GetTransaction returns the full view to the guest or the host.
func (o *Orchestrator) GetTransaction(ctx context.Context, bookingID, userID uuid.UUID) (_ *domain.TransactionView, err error) {
	ctx, span := o.start(ctx, "GetTransaction", attribute.String("booking_id", bookingID.String()))
	defer func() { end(span, err) }()

	d, err := o.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !d.Booking.OwnedBy(userID) && !d.Booking.HostedBy(userID) {
		return nil, errors.Wrapf(domain.ErrUnauthorized, "user %s cannot view booking %s", userID, bookingID)
	}
	if d.Payment == nil {
		return nil, errors.Wrapf(domain.ErrNotFound, "payment for booking %s", bookingID)
	}

	view := domain.NewTransactionView(d.Booking, *d.Payment)
	view.Items = d.Items
	view.Request = d.Request
	view.Guest = o.user(ctx, d.Booking.UserID)
	view.Host = o.user(ctx, d.Booking.TenantID)
	return view, nil
}

func (o *Orchestrator) user(ctx context.Context, id uuid.UUID) *domain.UserView {
	u, err := o.catalog.GetUser(ctx, id)
	if err != nil {
		o.logger.WithError(err).WithField("user_id", id.String()).Debug("user lookup failed")
		return nil
	}
	return u
}

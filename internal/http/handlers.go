// Package http exposes the booking and payment use cases over a JSON API.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/property-bookings/internal/availability"
	"github.com/robertarktes/property-bookings/internal/booking"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/transaction"
)

const dateLayout = "2006-01-02"

// ReadinessCheck pings one backing service.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handlers struct {
	orch     *transaction.Orchestrator
	bookings *booking.Manager
	checker  *availability.Checker
	checks   []ReadinessCheck
}

func NewHandlers(orch *transaction.Orchestrator, bookings *booking.Manager, checker *availability.Checker, checks ...ReadinessCheck) *Handlers {
	return &Handlers{orch: orch, bookings: bookings, checker: checker, checks: checks}
}

type createTransactionRequest struct {
	RoomID int64 `json:"room_id"`
	domain.TransactionRequest
}

func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createTransactionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.RoomID <= 0 {
		writeError(w, r, errors.Wrap(domain.ErrValidation, "room_id is required"))
		return
	}

	view, err := h.orch.CreateTransaction(r.Context(), req.TransactionRequest, user, req.RoomID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, h.orch.GetTransaction)
}

func (h *Handlers) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, h.orch.UserCancelTransaction)
}

func (h *Handlers) ApproveTransaction(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, h.orch.ApproveTransaction)
}

func (h *Handlers) RejectTransaction(w http.ResponseWriter, r *http.Request) {
	h.withBooking(w, r, h.orch.TenantRejectTransaction)
}

func (h *Handlers) SubmitProof(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProofRef string `json:"proof_ref"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.withBooking(w, r, func(ctx context.Context, bookingID, userID uuid.UUID) (*domain.TransactionView, error) {
		return h.orch.SubmitProof(ctx, bookingID, userID, req.ProofRef)
	})
}

type bookingAction func(ctx context.Context, bookingID, userID uuid.UUID) (*domain.TransactionView, error)

func (h *Handlers) withBooking(w http.ResponseWriter, r *http.Request, action bookingAction) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := action(r.Context(), id, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// PaymentNotification receives gateway callbacks. Repeated deliveries of an
// applied status answer 200 with the current view.
func (h *Handlers) PaymentNotification(w http.ResponseWriter, r *http.Request) {
	var n domain.GatewayNotification
	if err := decode(r, &n); err != nil {
		writeError(w, r, err)
		return
	}
	if n.OrderID == "" || n.StatusCode == "" {
		writeError(w, r, errors.Wrap(domain.ErrValidation, "order_id and status_code are required"))
		return
	}
	view, err := h.orch.NotificationHandler(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.bookings.GetBookingByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !d.Booking.OwnedBy(user) && !d.Booking.HostedBy(user) {
		writeError(w, r, errors.Wrapf(domain.ErrUnauthorized, "booking %s", id))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) ListUserBookings(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.bookings.GetUserBookings)
}

func (h *Handlers) ListTenantBookings(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.bookings.GetTenantBookings)
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, domain.BookingFilter) (domain.Page[domain.Booking], error)) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := filterFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := fn(r.Context(), user, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) RoomAvailability(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || roomID <= 0 {
		writeError(w, r, errors.Wrap(domain.ErrValidation, "invalid room id"))
		return
	}
	q := r.URL.Query()
	checkIn, err1 := time.Parse(dateLayout, q.Get("check_in"))
	checkOut, err2 := time.Parse(dateLayout, q.Get("check_out"))
	if err1 != nil || err2 != nil {
		writeError(w, r, errors.Wrap(domain.ErrValidation, "check_in and check_out must be YYYY-MM-DD"))
		return
	}
	if !checkOut.After(checkIn) {
		writeError(w, r, domain.ErrInvalidDateRange)
		return
	}

	ok, err := h.checker.IsAvailable(r.Context(), roomID, checkIn, checkOut)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":   roomID,
		"check_in":  checkIn.Format(dateLayout),
		"check_out": checkOut.Format(dateLayout),
		"available": ok,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		loggerFrom(r.Context()).WithField("failed", failed).Warn("not ready")
		writeJSON(w, http.StatusServiceUnavailable, failed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(domain.ErrValidation, "decode body: %v", err)
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errors.Wrapf(domain.ErrValidation, "invalid %s", name)
	}
	return id, nil
}

func filterFrom(r *http.Request) (domain.BookingFilter, error) {
	q := r.URL.Query()
	f := domain.BookingFilter{Search: q.Get("q")}
	var err error
	if v := q.Get("page"); v != "" {
		if f.Page, err = strconv.Atoi(v); err != nil {
			return f, errors.Wrap(domain.ErrValidation, "invalid page")
		}
	}
	if v := q.Get("size"); v != "" {
		if f.Size, err = strconv.Atoi(v); err != nil {
			return f, errors.Wrap(domain.ErrValidation, "invalid size")
		}
	}
	return f, nil
}

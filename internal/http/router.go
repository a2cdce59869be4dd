package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/property-bookings/internal/idempotency"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, rule rateLimit.Rule, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.With(RateLimitMiddleware(rl, rule)).Post("/v1/payments/notifications", h.PaymentNotification)
	r.Get("/v1/rooms/{id}/availability", h.RoomAvailability)

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware)
		r.Use(RateLimitMiddleware(rl, rule))

		r.With(IdempotencyMiddleware(idemp)).Post("/v1/transactions", h.CreateTransaction)
		r.Get("/v1/transactions/{id}", h.GetTransaction)
		r.Post("/v1/transactions/{id}/proof", h.SubmitProof)
		r.Post("/v1/transactions/{id}/cancel", h.CancelTransaction)
		r.Post("/v1/transactions/{id}/approve", h.ApproveTransaction)
		r.Post("/v1/transactions/{id}/reject", h.RejectTransaction)

		r.Get("/v1/bookings", h.ListUserBookings)
		r.Get("/v1/bookings/{id}", h.GetBooking)
		r.Get("/v1/tenant/bookings", h.ListTenantBookings)
	})

	return r
}

package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/idempotency"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errorStatuses = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrValidation, http.StatusBadRequest, "validation"},
	{idempotency.ErrInvalidKey, http.StatusBadRequest, "invalid_idempotency_key"},
	{domain.ErrRoomUnavailable, http.StatusConflict, "room_unavailable"},
	{domain.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrSerializationFailure, http.StatusConflict, "conflict"},
	{idempotency.ErrInFlight, http.StatusConflict, "request_in_flight"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrUnauthorized, http.StatusForbidden, "forbidden"},
	{domain.ErrPaymentExpired, http.StatusGone, "payment_expired"},
	{domain.ErrUnrecognizedGatewayStatus, http.StatusBadGateway, "unrecognized_gateway_status"},
}

// statusFor maps a domain error onto an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.target) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		loggerFrom(r.Context()).WithError(err).Error("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

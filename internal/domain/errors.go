package domain

import "github.com/cockroachdb/errors"

var (
	ErrValidation                = errors.New("validation error")
	ErrRoomUnavailable           = errors.New("room unavailable")
	ErrIllegalTransition         = errors.New("illegal status transition")
	ErrNotFound                  = errors.New("not found")
	ErrUnauthorized              = errors.New("unauthorized")
	ErrPaymentExpired            = errors.New("payment expired")
	ErrUnrecognizedGatewayStatus = errors.New("unrecognized gateway status")
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrConflict             = errors.New("conflict")
)

// ErrInvalidDateRange is a validation error: check-out must follow check-in.
var ErrInvalidDateRange = errors.Wrap(ErrValidation, "invalid date range")

// Validation turns err into a validation error carrying err's message.
func Validation(err error) error {
	return errors.Wrap(ErrValidation, err.Error())
}

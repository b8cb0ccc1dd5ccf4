package httpapi

import (
	"net/http"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/service"
)

// Failures that only exist at the HTTP boundary.
var (
	errValidation      = &service.Error{Code: "VALIDATION", Kind: service.KindValidation, Message: "Invalid form"}
	errInvalidSecret   = &service.Error{Code: "INVALID_API_SECRET", Kind: service.KindDenied, Message: "Invalid API Secret"}
	errUnauthorized    = &service.Error{Code: "UNAUTHORIZED", Kind: service.KindDenied, Message: "Unauthorized"}
	errForbidden       = &service.Error{Code: "FORBIDDEN", Kind: service.KindDenied, Message: "Forbidden"}
	errTooManyRequests = &service.Error{Code: "RATE_LIMITED", Kind: service.KindDenied, Message: "Too many requests"}
)

var statusByCode = map[string]int{
	service.ErrLockNotFound.Code:         http.StatusBadRequest,
	service.ErrInvalidAction.Code:        http.StatusBadRequest,
	service.ErrVendorUnreachable.Code:    http.StatusBadGateway,
	service.ErrVendorRejected.Code:       http.StatusBadRequest,
	service.ErrRequestPersistFailed.Code: http.StatusBadRequest,
	service.ErrInvalidSignature.Code:     http.StatusUnauthorized,
	service.ErrMalformedBody.Code:        http.StatusUnprocessableEntity,
	service.ErrMissingDeviceID.Code:      http.StatusBadRequest,
	service.ErrUnknownEvent.Code:         http.StatusBadRequest,
	service.ErrRequestNotFound.Code:      http.StatusBadRequest,
	service.ErrLockNotAssigned.Code:      http.StatusNotFound,
	service.ErrUnknownCaller.Code:        http.StatusUnauthorized,
	service.ErrNoValidAuthorization.Code: http.StatusUnauthorized,
	service.ErrInternal.Code:             http.StatusInternalServerError,

	errValidation.Code:      http.StatusBadRequest,
	errInvalidSecret.Code:   http.StatusForbidden,
	errUnauthorized.Code:    http.StatusUnauthorized,
	errForbidden.Code:       http.StatusForbidden,
	errTooManyRequests.Code: http.StatusTooManyRequests,
}

// statusFor maps a domain error to its HTTP status.  Unknown codes are 500.
func statusFor(e *service.Error) int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

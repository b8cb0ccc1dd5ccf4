package service

import "fmt"

// Kind groups error codes by how callers should react to them.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindDenied
	KindVendorUnreachable
	KindVendorRejected
	KindSignatureInvalid
	KindPersistenceConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindDenied:
		return "denied"
	case KindVendorUnreachable:
		return "vendor_unreachable"
	case KindVendorRejected:
		return "vendor_rejected"
	case KindSignatureInvalid:
		return "signature_invalid"
	case KindPersistenceConflict:
		return "persistence_conflict"
	default:
		return "internal"
	}
}

// Error is a domain failure.  Message is safe to show to the caller; Err
// carries the underlying cause and is never rendered.
type Error struct {
	Code    string
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Code, so wrapped copies still satisfy
// errors.Is against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// With returns a copy of e wrapping cause.
func (e *Error) With(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

// Withf returns a copy of e with a formatted caller-facing message.
func (e *Error) Withf(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

var (
	ErrLockNotFound         = &Error{Code: "LOCK_NOT_FOUND", Kind: KindNotFound, Message: "Lock cannot be found"}
	ErrInvalidAction        = &Error{Code: "INVALID_ACTION", Kind: KindValidation, Message: "Action must be 1 (unlock) or 2 (lock)"}
	ErrVendorUnreachable    = &Error{Code: "VENDOR_UNREACHABLE", Kind: KindVendorUnreachable, Message: "Error on Nuki API"}
	ErrVendorRejected       = &Error{Code: "VENDOR_REJECTED", Kind: KindVendorRejected, Message: "Error from Nuki API"}
	ErrRequestPersistFailed = &Error{Code: "REQUEST_PERSIST_FAILED", Kind: KindPersistenceConflict, Message: "Request creation failed"}
	ErrInvalidSignature     = &Error{Code: "INVALID_SIGNATURE", Kind: KindSignatureInvalid, Message: "Invalid signature"}
	ErrMalformedBody        = &Error{Code: "MALFORMED_BODY", Kind: KindValidation, Message: "Request body is invalid"}
	ErrMissingDeviceID      = &Error{Code: "MISSING_DEVICE_ID", Kind: KindValidation, Message: "smartlockId is required"}
	ErrUnknownEvent         = &Error{Code: "UNKNOWN_EVENT", Kind: KindValidation, Message: "Unknown action"}
	ErrRequestNotFound      = &Error{Code: "REQUEST_NOT_FOUND", Kind: KindNotFound, Message: "Request cannot be found"}
	ErrLockNotAssigned      = &Error{Code: "LOCK_NOT_ASSIGNED", Kind: KindNotFound, Message: "Le numéro de téléphone n'est pas attribué à une serrure."}
	ErrUnknownCaller        = &Error{Code: "UNKNOWN_CALLER", Kind: KindDenied, Message: "Numéro de téléphone non autorisé."}
	ErrNoValidAuthorization = &Error{Code: "NO_VALID_AUTHORIZATION", Kind: KindDenied, Message: "Numéro de téléphone non autorisé à cette date."}
	ErrInternal             = &Error{Code: "INTERNAL", Kind: KindInternal, Message: "Internal error"}
)

package web

import (
	"net/http"

	"nestegg/internal/validate"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindMalformedID
	KindDuplicate
	KindUnauthenticated
	KindForbidden
	KindCSRF
	KindNotFound
	KindRateLimited
)

// Error is the one failure type the funnel understands. Message is safe for
// clients; Err carries internal detail and is only surfaced in dev mode.
type Error struct {
	Kind    Kind
	Message string
	Fields  []validate.Error
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(errs []validate.Error) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Fields: errs}
}

func StatusOf(kind Kind) int {
	switch kind {
	case KindValidation, KindMalformedID:
		return http.StatusBadRequest
	case KindDuplicate:
		return http.StatusConflict
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden, KindCSRF:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

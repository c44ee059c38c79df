package apperrors

import "errors"

// Sentinel classes for the messaging core. Handlers map these onto HTTP
// statuses; anything outside the taxonomy is a server fault surfaced
// generically.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
)

// Error carries a client-facing message on top of its class, so
// errors.Is(err, ErrConflict) matches while err.Error() stays clean for
// the response body.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func InvalidInput(msg string) error {
	return &Error{Kind: ErrInvalidInput, Msg: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Msg: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: ErrForbidden, Msg: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Msg: msg}
}

func Unavailable(msg string) error {
	return &Error{Kind: ErrUnavailable, Msg: msg}
}

// IsClientError reports whether err belongs to the client-fault classes
// that must never be retried.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound)
}

package drive

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a drive error.
type Kind int

const (
	KindUnknown Kind = iota
	NotFound
	Forbidden
	InvalidInput
	Conflict
	QuotaExceeded
	CyclicMove
	UpstreamFailure
	Unauthenticated
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case InvalidInput:
		return "invalid_input"
	case Conflict:
		return "conflict"
	case QuotaExceeded:
		return "quota_exceeded"
	case CyclicMove:
		return "cyclic_move"
	case UpstreamFailure:
		return "upstream_failure"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the response status used for errors of this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case InvalidInput, CyclicMove:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case QuotaExceeded:
		return http.StatusRequestEntityTooLarge
	case UpstreamFailure:
		return http.StatusBadGateway
	case Unauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is returned by Service operations. Msg is safe to show to users;
// Err, when set, carries the underlying cause for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, &drive.Error{Kind: drive.NotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

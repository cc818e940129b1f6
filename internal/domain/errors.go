package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrEngineRejected = errors.New("engine rejected operation")
	ErrInvalidRequest = errors.New("invalid request")
)

type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindUnauthorized   ErrorKind = "unauthorized"
	KindEngineRejected ErrorKind = "engine_rejected"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindInternal       ErrorKind = "internal"
)

// KindOf classifies err by the sentinel it wraps.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrEngineRejected):
		return KindEngineRejected
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUsernameEmpty), errors.Is(err, ErrUsernameTooLong):
		return KindInvalidRequest
	default:
		return KindInternal
	}
}

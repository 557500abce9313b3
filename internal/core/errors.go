package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeNotFound          = "not_found"
	ErrCodeNotMember         = "not_member"
	ErrCodeBadEvent          = "bad_event"
	ErrCodeStoreUnavailable  = "store_unavailable"
	ErrCodeInvalidConnection = "invalid_connection"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNotMember         = errors.New("not a room member")
	ErrBadEvent          = errors.New("bad event")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInvalidConnection = errors.New("invalid connection")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

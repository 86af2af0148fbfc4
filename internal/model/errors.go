package model

import "fmt"

// ErrorKind classifies provider failures. All of them are fatal to the task
// that observes them; retry policy belongs to the submitter.
type ErrorKind string

const (
	ErrAuth        ErrorKind = "auth"
	ErrTransport   ErrorKind = "transport"
	ErrRateLimited ErrorKind = "rate_limited"
	ErrProtocol    ErrorKind = "protocol"
	ErrNotFound    ErrorKind = "model_not_found"
	ErrUnknown     ErrorKind = "unknown"
)

// Error is a classified provider failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("model error (%s)", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// WrapError classifies err under kind.
func WrapError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

package task

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by any stage that observed the cancellation token.
// It is mapped to the Cancelled outcome and never reported as a failure.
var ErrCancelled = errors.New("task cancelled")

// ErrorKind classifies a failure. The prefix names the stage family.
type ErrorKind string

const (
	ErrTimeout          ErrorKind = "network.timeout"
	ErrRetriesExhausted ErrorKind = "network.retries_exhausted"
	ErrConnectionFailed ErrorKind = "network.connection_failed"

	ErrMalformedJSON ErrorKind = "decode.malformed_json"
	ErrMalformedXML  ErrorKind = "decode.malformed_xml"

	ErrUnknownOperation ErrorKind = "analysis.unknown_operation"
	ErrBackendFailure   ErrorKind = "analysis.backend_failure"

	ErrUnknownKind      ErrorKind = "invalid_task.unknown_kind"
	ErrMissingOperation ErrorKind = "invalid_task.missing_operation"
	ErrMissingTarget    ErrorKind = "invalid_task.missing_target"
	ErrInvalidPolicy    ErrorKind = "invalid_task.invalid_policy"

	ErrInternal ErrorKind = "internal.panic"
)

// Family returns the stage family of the kind ("network", "decode", ...)
func (k ErrorKind) Family() string {
	for i := 0; i < len(k); i++ {
		if k[i] == '.' {
			return string(k[:i])
		}
	}
	return string(k)
}

// Error is the typed failure carried by a Failed outcome
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// NewError creates an Error wrapping cause
func NewError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same kind, so callers can write
// errors.Is(err, &task.Error{Kind: task.ErrTimeout}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf extracts the ErrorKind from err, or "" when err carries none
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

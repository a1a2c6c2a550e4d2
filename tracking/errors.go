package tracking

import (
	"errors"
	"fmt"

	"github.com/amonks/timekeep/internal/validation"
)

var (
	// ErrAlreadyRunning indicates a timer is already running locally.
	ErrAlreadyRunning = errors.New("timer already running")
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("transport failure")
	// ErrInvalidSubjectType indicates a subject type is not case or todo.
	ErrInvalidSubjectType = errors.New("invalid subject type")
)

// TransportError reports a gateway call that did not succeed.
type TransportError struct {
	// Op names the gateway operation, e.g. "stop timer".
	Op string
	// Status is the HTTP status, or 0 when no response was received.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) match any transport error.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ValidationError is a rejection reported by the backend, e.g. a manual
// entry dated in the future. It is passed to callers unchanged.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

// FormatInvalidSubjectType wraps ErrInvalidSubjectType with the offending value.
func FormatInvalidSubjectType(value SubjectType) error {
	return validation.FormatInvalidValueError(ErrInvalidSubjectType, value, ValidSubjectTypes())
}

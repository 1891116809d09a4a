package channel

import (
	"errors"
	"fmt"

	"github.com/saylorsolutions/patternbus/pattern"
)

var (
	ErrNoTransport          = errors.New("no transport mounted")
	ErrNoHandler            = errors.New("no handler registered")
	ErrNotFound             = errors.New("not found")
	ErrDuplicateTransport   = errors.New("a transport already exists")
	ErrInvalidHandler       = errors.New("invalid handler")
	ErrHandlerExists        = errors.New("a handler already exists")
	ErrHandlerPanic         = errors.New("handler panicked")
	ErrUnsupportedTransport = errors.New("unsupported transport")
)

// NoTransportError is returned when no mounted transport matches a message pattern,
// or when a transport delivers a message that it isn't mounted to handle.
type NoTransportError struct {
	Pattern pattern.Pattern
}

func (e *NoTransportError) Error() string {
	return fmt.Sprintf("%s for pattern {%s}", ErrNoTransport, e.Pattern)
}

func (e *NoTransportError) Unwrap() error {
	return ErrNoTransport
}

// NoHandlerError is returned when a single handler channel receives a message that no handler matches.
type NoHandlerError struct {
	Pattern pattern.Pattern
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("%s for pattern {%s}", ErrNoHandler, e.Pattern)
}

func (e *NoHandlerError) Unwrap() error {
	return ErrNoHandler
}

// NotFoundError is how a transport reports that nothing responded to a message.
// It wraps the channel level error that caused it, if any.
type NotFoundError struct {
	Message string
	Err     error
}

// NewNotFoundError creates a [NotFoundError] from a channel level error.
func NewNotFoundError(cause error) *NotFoundError {
	return &NotFoundError{Message: cause.Error(), Err: cause}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotFound, e.Message)
}

func (e *NotFoundError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNotFound}
	}
	return []error{ErrNotFound, e.Err}
}

// DuplicateTransportError is returned when a transport is mounted on a pattern that already has one.
type DuplicateTransportError struct {
	Pattern pattern.Pattern
}

func (e *DuplicateTransportError) Error() string {
	return fmt.Sprintf("%s on {%s}", ErrDuplicateTransport, e.Pattern)
}

func (e *DuplicateTransportError) Unwrap() error {
	return ErrDuplicateTransport
}

// reportedError marks an error that was already emitted on a channel's error stream.
// It's used to keep the broadcasting side from emitting the same failure twice.
type reportedError struct {
	error
}

func (e *reportedError) Unwrap() error {
	return e.error
}

func markReported(err error) error {
	if err == nil || isReported(err) {
		return err
	}
	return &reportedError{err}
}

func isReported(err error) bool {
	var reported *reportedError
	return errors.As(err, &reported)
}

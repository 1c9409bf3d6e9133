package entities

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the engines and the transport layer.
var (
	// ErrNotFound is returned when a lesson, exercise or record id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedCapability is returned when the host offers no speech input.
	ErrUnsupportedCapability = errors.New("unsupported capability")
	// ErrProvider wraps failures of an external provider (tutor, payment, speech).
	ErrProvider = errors.New("provider error")
	// ErrValidation marks a malformed request that should have been rejected by the caller.
	ErrValidation = errors.New("validation error")
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrNoActiveUser is returned by progression mutations when nobody is logged in.
	ErrNoActiveUser = errors.New("no active user")
)

// NotFound builds an ErrNotFound carrying the kind and id that failed to resolve.
func NotFound(kind string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}

// Validation builds an ErrValidation with a formatted message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// InvalidState builds an ErrInvalidState describing the rejected operation.
func InvalidState(op string, state interface{}) error {
	return fmt.Errorf("%s not allowed in state %v: %w", op, state, ErrInvalidState)
}

// Provider wraps err as an ErrProvider for the named provider.
func Provider(name string, err error) error {
	return fmt.Errorf("%s: %w: %v", name, ErrProvider, err)
}

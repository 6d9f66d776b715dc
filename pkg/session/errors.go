package session

import (
	"errors"
	"fmt"
)

// Session errors.
var (
	// ErrNotConnected is returned when no transport is live, or when the
	// transport dropped while a request was waiting.
	ErrNotConnected = errors.New("not connected")

	// ErrTimeout is returned when no COMPLETE arrived in time.
	ErrTimeout = errors.New("request timed out")

	// ErrHandshake is the cause of every registration failure.
	ErrHandshake = errors.New("handshake failed")

	// ErrAlreadyConnected is returned by Connect while an attempt is active.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// Handshake steps.
const (
	StepInfo     = "info"
	StepRegister = "register"
)

// HandshakeError reports which handshake step failed.
type HandshakeError struct {
	Step string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake %s: %v", e.Step, e.Err)
}

// Unwrap returns both ErrHandshake and the cause.
func (e *HandshakeError) Unwrap() []error {
	return []error{ErrHandshake, e.Err}
}

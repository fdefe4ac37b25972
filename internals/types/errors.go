package types

import (
	"errors"
	"fmt"
)

var (
	ErrMissingIdentifier    = errors.New("missing identifier")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrSessionClosed        = errors.New("session closed")
	ErrEmptyPayload         = errors.New("empty bulk payload")
)

// MissingIdentifierError is returned when an index or delete operation is
// built without an id. It is raised before any network interaction.
type MissingIdentifierError struct {
	Op OperationKind
}

func (e *MissingIdentifierError) Error() string {
	return fmt.Sprintf("%s requires an id", e.Op)
}

func (e *MissingIdentifierError) Is(target error) bool {
	return target == ErrMissingIdentifier
}

// UnsupportedOperationError signals a capability mismatch of a transport.
type UnsupportedOperationError struct {
	Op     string
	Reason string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %s: %s", e.Op, e.Reason)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

// TransportError wraps a connection or publish failure at the broker boundary.
// Release holds a secondary failure raised while closing resources; it never
// replaces Err.
type TransportError struct {
	Op      string
	Err     error
	Release error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
	if e.Release != nil {
		msg += fmt.Sprintf(" (release: %v)", e.Release)
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

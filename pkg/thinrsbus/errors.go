package thinrsbus

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownVersion      = errors.New("thinrsbus: unknown envelope version")
	ErrMessageTrimmed      = errors.New("thinrsbus: message has been trimmed (nil fields)")
	ErrMissingField        = errors.New("thinrsbus: missing required field")
	ErrQueueClosed         = errors.New("thinrsbus: queue is closed")
	ErrReceiverClosed      = errors.New("thinrsbus: receiver is closed")
	ErrEndpointUnavailable = errors.New("thinrsbus: endpoint unavailable")
)

// MissingFieldError wraps ErrMissingField with the field name.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("thinrsbus: missing required field '%s'", e.Field)
}

func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

// EndpointError is returned when a receiver cannot attach to its queue.
// It matches ErrEndpointUnavailable with errors.Is and unwraps to the cause.
type EndpointError struct {
	Endpoint string
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("thinrsbus: there are issues with the queue '%s': %v", e.Endpoint, e.Err)
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}

func (e *EndpointError) Is(target error) bool {
	return target == ErrEndpointUnavailable
}

// TransportError is a queue failure that is neither a timeout nor a close.
// Code is the transport's short error code (for Redis, the reply prefix).
type TransportError struct {
	Code    string
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("thinrsbus: transport error (%s): %s", e.Code, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ConsumerPanicError carries the value recovered from a panicking consumer.
type ConsumerPanicError struct {
	Value any
}

func (e *ConsumerPanicError) Error() string {
	return fmt.Sprintf("thinrsbus: consumer panicked: %v", e.Value)
}

package payment

import (
	"errors"
	"fmt"
)

// Errors raised to the caller. They mean the call was rejected before any
// gateway contact and nothing was written.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrInvalidState     = errors.New("invalid state")
	ErrMissingParameter = errors.New("missing parameter")
)

// Error describes a rejected call.
type Error struct {
	Kind error
	Op   Operation
	Msg  string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

// ConfigurationError reports a disabled operation or a missing gateway capability.
func ConfigurationError(op Operation, format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// InvalidStateError reports a status incompatible with the requested operation.
func InvalidStateError(op Operation, format string, args ...any) error {
	return &Error{Kind: ErrInvalidState, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// MissingParameterError reports an unresolvable transaction reference.
func MissingParameterError(op Operation, format string, args ...any) error {
	return &Error{Kind: ErrMissingParameter, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ErrorKind classifies an expected runtime failure carried in a ServiceResponse.
type ErrorKind string

const (
	ErrorKindNone                   ErrorKind = ""
	ErrorKindGateway                ErrorKind = "GatewayError"
	ErrorKindNotificationMismatch   ErrorKind = "NotificationMismatchError"
	ErrorKindGatewayReportedFailure ErrorKind = "GatewayReportedFailure"
)

// Package apperror implements the abstract error taxonomy of the
// notification bridge: transport, decode, validation, config, dispatch,
// timeout and fatal-init errors. Every kind except fatal-init is meant to be
// recovered locally by its caller; fatal-init aborts the process.
package apperror

import (
	"errors"
	"fmt"
)

// Kind identifies one of the abstract error categories.
type Kind string

const (
	KindTransport  Kind = "transport_error"
	KindDecode     Kind = "decode_error"
	KindValidation Kind = "validation_error"
	KindConfig     Kind = "config_error"
	KindDispatch   Kind = "dispatch_error"
	KindTimeout    Kind = "timeout"
	KindFatalInit  Kind = "fatal_init_error"
)

// Error wraps an underlying cause with one of the abstract Kinds.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Transport(message string, cause error) *Error  { return newErr(KindTransport, message, cause) }
func Decode(message string, cause error) *Error      { return newErr(KindDecode, message, cause) }
func Validation(message string, missing []string) *Error {
	if len(missing) > 0 {
		message = fmt.Sprintf("%s (missing: %v)", message, missing)
	}
	return newErr(KindValidation, message, nil)
}
func Config(message string, cause error) *Error   { return newErr(KindConfig, message, cause) }
func Dispatch(message string, cause error) *Error { return newErr(KindDispatch, message, cause) }
func Timeout(message string, cause error) *Error  { return newErr(KindTimeout, message, cause) }
func FatalInit(message string, cause error) *Error {
	return newErr(KindFatalInit, message, cause)
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ErrNotFound is returned by lookups (e.g. Registry.GetMap) that find nothing.
// It is not itself part of the §7 taxonomy — callers treat it as a normal,
// expected "not found" result rather than a recovered error kind.
var ErrNotFound = errors.New("not found")

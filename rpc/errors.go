package rpc

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind (or errors.Is against the sentinels below)
// rather than matching error strings.
type Kind string

const (
	// KindRequest covers non-success HTTP statuses and transport failures.
	KindRequest Kind = "Request"
	// KindUnsupported marks operations this client deliberately does not
	// implement. No network call is made.
	KindUnsupported Kind = "Unsupported"
	// KindFormat marks a response whose shape is not recognized.
	KindFormat Kind = "Format"
)

var (
	ErrRequestFailed  = errors.New("rpc: request failed")
	ErrNotImplemented = errors.New("rpc: not implemented")
	ErrUnknownFormat  = errors.New("rpc: unknown response format")
)

// Error is the structured error returned by this package and the API
// facades built on it.
//
// Message is the server's text when one was supplied; do not match on it.
type Error struct {
	Kind       Kind
	Command    string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Message != "" && e.Command != "":
		return fmt.Sprintf("%s: %s", e.Command, e.Message)
	case e.Message != "":
		return e.Message
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Command, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Command, string(e.Kind))
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is maps a Kind onto its package sentinel so errors.Is works without
// callers having to unwrap *Error themselves.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrRequestFailed:
		return e.Kind == KindRequest
	case ErrNotImplemented:
		return e.Kind == KindUnsupported
	case ErrUnknownFormat:
		return e.Kind == KindFormat
	}
	return false
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// NotImplemented returns the error for a deliberately unsupported command.
func NotImplemented(command string) error {
	return &Error{Kind: KindUnsupported, Command: command, Message: "not implemented"}
}

// FormatError returns the error for an unrecognized response shape.
func FormatError(command, msg string) error {
	return &Error{Kind: KindFormat, Command: command, Message: msg}
}

func requestError(command string, status int, msg string, cause error) error {
	return &Error{Kind: KindRequest, Command: command, StatusCode: status, Message: msg, Cause: cause}
}

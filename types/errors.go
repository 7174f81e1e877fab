package types

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure in a run is fatal; the kind tells the operator
// what to fix before restarting. Use errors.Is(err, ErrXxx) to classify.
var (
	// ErrTransport indicates a network failure talking to an endpoint.
	ErrTransport = errors.New("transport error")

	// ErrResponseParse indicates a malformed server payload.
	ErrResponseParse = errors.New("response parse error")

	// ErrServerReported indicates an application-level error list returned by the endpoint.
	ErrServerReported = errors.New("server reported error")

	// ErrProvenanceUnavailable indicates both provenance fallback lookups failed.
	ErrProvenanceUnavailable = errors.New("provenance unavailable")

	// ErrDecode indicates a malformed base64 or binary package payload.
	ErrDecode = errors.New("decode error")

	// ErrFilesystem indicates a directory or file operation failed.
	ErrFilesystem = errors.New("filesystem error")

	// ErrSubprocess indicates the external decompiler failed.
	ErrSubprocess = errors.New("subprocess error")
)

// Error wraps an underlying cause with its kind and context.
type Error struct {
	// Kind is one of the ErrXxx sentinels.
	Kind error
	// Op is the operation that failed (e.g. "fetch page", "write bcs.json").
	Op string
	// Subject is the package id, address or path involved, if any.
	Subject string
	// Err is the underlying cause. May be nil.
	Err error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Subject != "" {
		msg += " " + e.Subject
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewError creates a classified error.
func NewError(kind error, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// KindOf returns the ErrXxx kind of err, or nil if err is unclassified.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

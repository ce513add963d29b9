package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrorKind classifies failures so callers can react without string matching.
type ErrorKind string

const (
	KindAdapterNotFound   ErrorKind = "adapter_not_found"
	KindSerialization     ErrorKind = "serialization"
	KindDeserialization   ErrorKind = "deserialization"
	KindToolResolution    ErrorKind = "tool_resolution"
	KindStreamInterrupted ErrorKind = "stream_interrupted"
	KindCancelled         ErrorKind = "cancelled"
	KindTimeout           ErrorKind = "timeout"
	KindUpstream          ErrorKind = "upstream"
	KindTransport         ErrorKind = "transport"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrAdapterNotFound   = &Error{Kind: KindAdapterNotFound}
	ErrSerialization     = &Error{Kind: KindSerialization}
	ErrDeserialization   = &Error{Kind: KindDeserialization}
	ErrToolResolution    = &Error{Kind: KindToolResolution}
	ErrStreamInterrupted = &Error{Kind: KindStreamInterrupted}
	ErrCancelled         = &Error{Kind: KindCancelled}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrUpstream          = &Error{Kind: KindUpstream}
	ErrTransport         = &Error{Kind: KindTransport}
)

// Error is the error type returned by adapters, transports and the conversation engine.
type Error struct {
	Kind       ErrorKind
	Provider   ID
	HTTPStatus int
	Message    string
	// Raw holds the vendor payload that caused the error, when there is one.
	Raw   []byte
	Cause error
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, provider ID, message string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(string(e.Provider))
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (status %d)", e.HTTPStatus)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// LogValue logs the error as a group so kind and status are searchable.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", string(e.Kind)),
		slog.String("msg", e.Error()),
	}
	if e.Provider != "" {
		attrs = append(attrs, slog.String("provider", string(e.Provider)))
	}
	if e.HTTPStatus != 0 {
		attrs = append(attrs, slog.Int("status", e.HTTPStatus))
	}
	return slog.GroupValue(attrs...)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain. Bare context errors
// map to KindCancelled and KindTimeout.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return ""
}

// ContextError converts a context error into the matching kind.
func ContextError(provider ID, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, provider, "deadline exceeded", err)
	}
	return NewError(KindCancelled, provider, "request cancelled", err)
}

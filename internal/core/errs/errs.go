// Package errs provides structured error types and helpers for the todostream core.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies an error category within the store and storage stack.
type Code string

const (
	// CodeStorage indicates a backend read or write failure.
	CodeStorage Code = "storage"
	// CodeCorruptRecord indicates a persisted record that failed to decode or validate.
	CodeCorruptRecord Code = "corrupt_record"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeUnavailable indicates a closed repository or store.
	CodeUnavailable Code = "unavailable"
	// CodeUsage indicates a programming error in reactive wiring.
	CodeUsage Code = "usage"
	// CodeConfig indicates a configuration load or validation failure.
	CodeConfig Code = "config"
	// CodeUnknown captures uncategorized failures.
	CodeUnknown Code = "unknown"
)

// E captures structured error information produced across the todostream stack.
type E struct {
	Op      string
	Code    Code
	Message string
	Fields  map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the operation and error code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{
		Op:      strings.TrimSpace(op),
		Code:    code,
		Message: "",
		Fields:  nil,
		cause:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithField appends a single metadata key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Fields == nil {
			e.Fields = make(map[string]string, 1)
		}
		e.Fields[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	op := strings.TrimSpace(e.Op)
	if op == "" {
		op = "unknown"
	}
	parts = append(parts, "op="+op)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = string(CodeUnknown)
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Fields[k]))
		}
		parts = append(parts, "fields="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the error code from err, walking the wrap chain.
// Errors outside the envelope report CodeUnknown.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	for err != nil {
		var e *E
		if !errors.As(err, &e) || e == nil {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Unwrap()
	}
	return false
}

// Usage returns a standardized error for reactive wiring mistakes.
// Callers typically panic with it: misuse is unrecoverable at runtime.
func Usage(op, msg string) *E {
	return New(op, CodeUsage, WithMessage(strings.TrimSpace(msg)))
}

package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// PlatformError is an error carrying an ErrorCode, a message, optional
// key/value context and the wrapped cause.
type PlatformError struct {
	// Code classifies the error.
	Code ErrorCode

	// Message is the human readable description.
	Message string

	// Context holds structured fields such as the artifact name or channel.
	Context map[string]interface{}

	// Cause is the wrapped error, if any.
	Cause error
}

// Error implements the error interface.
func (e *PlatformError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *PlatformError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PlatformError with the same code.
// This lets callers match on a code with errors.Is(err, &PlatformError{Code: c}).
func (e *PlatformError) Is(target error) bool {
	t, ok := target.(*PlatformError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Cause == nil
}

// New creates a PlatformError with the given code and message.
func New(code ErrorCode, message string) *PlatformError {
	return &PlatformError{Code: code, Message: message}
}

// Newf creates a PlatformError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *PlatformError {
	return &PlatformError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message. It returns nil if err is nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &PlatformError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with a code and formatted message. It returns nil if err is nil.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &PlatformError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WrapWithContext wraps err with a code, message and structured context.
// It returns nil if err is nil.
func WrapWithContext(err error, code ErrorCode, message string, ctx map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &PlatformError{Code: code, Message: message, Context: ctx, Cause: err}
}

// WithContext returns a copy of e with key set to value in its context.
func (e *PlatformError) WithContext(key string, value interface{}) *PlatformError {
	cp := *e
	cp.Context = make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// GetCode returns the code of the outermost PlatformError in err's chain,
// or CodeUnknown if there is none.
func GetCode(err error) ErrorCode {
	var pe *PlatformError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// HasCode reports whether any PlatformError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if pe, ok := err.(*PlatformError); ok && pe.Code == code {
			return true
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				if HasCode(e, code) {
					return true
				}
			}
			return false
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Is is a passthrough to the standard library errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is a passthrough to the standard library errors.As.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Join is a passthrough to the standard library errors.Join.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// Package errdef defines the coded error taxonomy shared across the
// executor, the history store, and the bridge. Codes let callers map a
// failure to user-facing handling (fix your input vs. retry vs. drop)
// without string matching.
package errdef

import (
	"errors"
	"fmt"
)

// Code classifies an error.
type Code string

const (
	// Validation failures: fixable by the user before sending.
	CodeInvalidMethod Code = "invalid_method"
	CodeInvalidURL    Code = "invalid_url"
	CodeInvalidHeader Code = "invalid_header"
	CodeMalformedBody Code = "malformed_body"

	// Transport failures: reported after the network attempt.
	CodeNetwork   Code = "network"
	CodeTimeout   Code = "timeout"
	CodeCancelled Code = "cancelled"

	// Infrastructure.
	CodePersistence Code = "persistence"
	CodeInternal    Code = "internal"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil if err is nil.
func Wrap(code Code, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code from err, or CodeInternal if err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsValidation reports whether err is a pre-dispatch validation failure.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidMethod, CodeInvalidURL, CodeInvalidHeader, CodeMalformedBody:
		return true
	}
	return false
}

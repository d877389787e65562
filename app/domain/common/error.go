package common

import (
	"errors"
)

// Kind classifies feed errors so the interface layer can choose how to
// surface them.
type Kind string

const (
	KindCacheUnavailable Kind = "cache_unavailable"
	KindFetchFailed      Kind = "fetch_failed"
	KindMutationRejected Kind = "mutation_rejected"
	KindAborted          Kind = "aborted"
	KindValidationFailed Kind = "validation_failed"
	KindDebounced        Kind = "debounced"
	KindNotFound         Kind = "not_found"
	KindUnauthorized     Kind = "unauthorized"
)

// Error represents a standardized error with kind, code and message
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// NewError creates a new Error instance
func NewError(kind Kind, code, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Wrap attaches the underlying cause to a copy of e
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// WithMessage returns a copy of e carrying a more specific message
func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

// IsEmpty checks if the error is empty (no error)
func (e *Error) IsEmpty() bool {
	return e == nil || e.Code == ""
}

// String returns the string representation of the error
func (e *Error) String() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so wrapped copies still compare
// equal to the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind, true
	}
	return "", false
}

// EmptyError represents an empty error (no error occurred)
var EmptyError = &Error{}

var (
	ErrCacheUnavailable = NewError(KindCacheUnavailable, "0f1d63a4-5a7e-4a36-9a43-2c1b8a3f5e01", "cache backend unavailable")
	ErrFetchFailed      = NewError(KindFetchFailed, "5c7a1d2e-3b4f-4e5a-8c9d-0e1f2a3b4c02", "failed to load feed")
	ErrMutationRejected = NewError(KindMutationRejected, "9e8d7c6b-5a4f-4e3d-8c2b-1a0f9e8d7c03", "the change could not be saved")
	ErrAborted          = NewError(KindAborted, "3a2b1c0d-9e8f-4a7b-8c6d-5e4f3a2b1c04", "request superseded")
	ErrValidationFailed = NewError(KindValidationFailed, "7b6a5f4e-3d2c-4b1a-9f8e-7d6c5b4a3f05", "invalid input")
	ErrDebounced        = NewError(KindDebounced, "1d0c9b8a-7f6e-4d5c-8b4a-3f2e1d0c9b06", "too many requests, slow down")
	ErrNotFound         = NewError(KindNotFound, "6f5e4d3c-2b1a-4f0e-9d8c-7b6a5f4e3d07", "not found")
	ErrUnauthorized     = NewError(KindUnauthorized, "2e1f0a9b-8c7d-4e6f-8a5b-4c3d2e1f0a08", "unauthorized")
)

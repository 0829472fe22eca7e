// Package domainerrors defines the coded error type surfaced at the API
// boundary. Stores return sentinel errors (pkg/platform/sentinel); services
// translate those into coded domain errors; the HTTP layer maps codes onto
// statuses via ToHTTPStatus.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain error. Codes are part of the public API
// contract: they appear verbatim in JSON error envelopes.
type Code string

const (
	CodeInvalidInput   Code = "invalid_input"
	CodeNotFound       Code = "not_found"
	CodeLocked         Code = "locked"
	CodeInvalidCode    Code = "invalid_code"
	CodeAlreadyUsed    Code = "already_used"
	CodeCooldownActive Code = "cooldown_active"
	CodeRateLimited    Code = "rate_limited"
	CodeDeliveryFailed Code = "delivery_failed"
	CodeUnauthorized   Code = "unauthorized"
	CodeUnavailable    Code = "backend_unavailable"
	CodeInternal       Code = "internal_error"
)

// DomainError carries a machine-readable code plus a human-readable message.
type DomainError struct {
	Code    Code
	Message string
	wrapped error
}

func (e *DomainError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.wrapped }

// New creates a domain error with the given code and message.
func New(code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Wrap creates a domain error that preserves the underlying cause for
// errors.Is/errors.As chains while presenting a coded message upward.
func Wrap(code Code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, wrapped: err}
}

// Is reports whether err (or anything it wraps) is a domain error with the
// given code.
func Is(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// non-domain errors so unexpected failures never leak detail.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain error code onto an HTTP status. Recoverable
// verification outcomes (wrong code, lockout, replay) are deliberately 200s at
// the handler layer and never pass through here; this mapping covers
// request-rejection paths.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited, CodeCooldownActive, CodeLocked:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

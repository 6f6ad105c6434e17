// Package domainerrors defines the closed error taxonomy used across the
// service. Callers match on codes, never on message strings, so every
// fallible operation returns one of the codes below and handlers can map
// them to HTTP statuses exhaustively.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a category of failure. The set is closed: introducing a
// new code means updating ToHTTPStatus as well.
type Code string

const (
	CodeInvalidInput            Code = "INVALID_INPUT"
	CodeAuthRequired            Code = "AUTH_REQUIRED"
	CodeInsufficientCredits     Code = "INSUFFICIENT_CREDITS"
	CodeAccountNotFound         Code = "ACCOUNT_NOT_FOUND"
	CodeRateLimitExceeded       Code = "RATE_LIMIT_EXCEEDED"
	CodePending                 Code = "PENDING"
	CodeFreeLookupLimitExceeded Code = "FREE_LOOKUP_LIMIT_EXCEEDED"
	CodeCreditDeductionFailed   Code = "CREDIT_DEDUCTION_FAILED"
	CodeProfileNotFound         Code = "PROFILE_NOT_FOUND"

	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeConflict     Code = "CONFLICT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeValidation   Code = "VALIDATION"
	CodeInternal     Code = "INTERNAL"
)

// Error carries a code, a caller-facing message, and an optional wrapped
// cause that stays server-side.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a domain error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// anything outside the taxonomy.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-facing message from err. Untyped errors
// collapse to a generic message so internals never leak to clients.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to its HTTP status. PENDING intentionally maps
// to 202: it signals "in progress, retry shortly", not a failure.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeValidation:
		return http.StatusBadRequest
	case CodeAuthRequired, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInsufficientCredits:
		return http.StatusPaymentRequired
	case CodeAccountNotFound, CodeNotFound, CodeProfileNotFound:
		return http.StatusNotFound
	case CodeRateLimitExceeded, CodeFreeLookupLimitExceeded:
		return http.StatusTooManyRequests
	case CodePending:
		return http.StatusAccepted
	case CodeConflict:
		return http.StatusConflict
	case CodeCreditDeductionFailed, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures returned by the points economy operations
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindAuthorization     ErrorKind = "authorization"
	KindConflict          ErrorKind = "conflict"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindQuotaExceeded     ErrorKind = "quota_exceeded"
	KindRateLimited       ErrorKind = "rate_limited"
)

// Error is the typed error every operation returns for expected failures.
// Unexpected failures (database, network) are returned as plain wrapped errors.
type Error struct {
	Kind    ErrorKind
	Message string

	// Deficit is set for insufficient_funds: points still missing
	Deficit int64
	// RemainingMinutes is set for screen-time quota failures
	RemainingMinutes int
	// RetryAfterSeconds is set for rate_limited
	RetryAfterSeconds int
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works
// regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrAuthorization     = &Error{Kind: KindAuthorization}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrQuotaExceeded     = &Error{Kind: KindQuotaExceeded}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
)

// NewValidationError reports malformed or out-of-range input
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports an unknown id or a resource in another family
func NewNotFoundError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewAuthorizationError reports an actor that may not perform the operation
func NewAuthorizationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError reports a state that does not allow the operation
func NewConflictError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NewInsufficientFundsError reports a debit larger than the balance
func NewInsufficientFundsError(balance, required int64) *Error {
	return &Error{
		Kind:    KindInsufficientFunds,
		Message: fmt.Sprintf("insufficient points: have %d, need %d", balance, required),
		Deficit: required - balance,
	}
}

// NewQuotaExceededError reports an exhausted stock, weekly limit or screen budget
func NewQuotaExceededError(remainingMinutes int, format string, args ...interface{}) *Error {
	return &Error{
		Kind:             KindQuotaExceeded,
		Message:          fmt.Sprintf(format, args...),
		RemainingMinutes: remainingMinutes,
	}
}

// NewRateLimitedError reports too many attempts within the current window
func NewRateLimitedError(retryAfterSeconds int) *Error {
	return &Error{
		Kind:              KindRateLimited,
		Message:           fmt.Sprintf("too many attempts, retry in %d seconds", retryAfterSeconds),
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// AsError extracts the typed error from a wrapped chain
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

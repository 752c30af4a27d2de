package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the error type surfaced to API clients. Code is a stable
// machine-readable identifier; Message is free to change between releases.
type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, status int, message string) *AppError {
	return &AppError{
		Code:    code,
		Status:  status,
		Message: message,
	}
}

// WithDetails returns a copy of the error with extra context attached. The
// receiver is never mutated so the package-level sentinels stay comparable.
func (e *AppError) WithDetails(details string) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

// Is makes package-level sentinels match decorated copies under errors.Is.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if !errors.As(target, &appErr) {
		return false
	}
	return e.Code == appErr.Code
}

// FromError extracts an AppError from an error chain. Unrecognized errors map
// to a generic internal error so raw messages never leak to clients.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New("INTERNAL_ERROR", http.StatusInternalServerError, "Internal server error")
}

// Authentication
var (
	ErrTokenExpired = New("TOKEN_EXPIRED", http.StatusUnauthorized, "Token expired")
	ErrTokenInvalid = New("TOKEN_INVALID", http.StatusUnauthorized, "Invalid token")
)

// Authorization
var (
	ErrRoleRequired = New("ROLE_REQUIRED", http.StatusForbidden, "Insufficient role")
)

// Validation
var (
	ErrAmountNonPositive = New("AMOUNT_NON_POSITIVE", http.StatusBadRequest, "Amount must be positive")
	ErrMissingAccount    = New("MISSING_ACCOUNT", http.StatusBadRequest, "Required account is missing")
	ErrCurrencyMismatch  = New("CURRENCY_MISMATCH", http.StatusBadRequest, "Currency mismatch")
)

// Entity
var (
	ErrAccountNotFound     = New("ACCOUNT_NOT_FOUND", http.StatusNotFound, "Account not found")
	ErrAccountInactive     = New("ACCOUNT_INACTIVE", http.StatusUnprocessableEntity, "Account is not active")
	ErrTransactionNotFound = New("TRANSACTION_NOT_FOUND", http.StatusNotFound, "Transaction not found")
)

// Business
var (
	ErrInsufficientFunds    = New("INSUFFICIENT_FUNDS", http.StatusUnprocessableEntity, "Insufficient funds")
	ErrLimitExceeded        = New("LIMIT_EXCEEDED", http.StatusUnprocessableEntity, "Transaction limit exceeded")
	ErrNotReversible        = New("NOT_REVERSIBLE", http.StatusUnprocessableEntity, "Transaction cannot be reversed")
	ErrAlreadyReversed      = New("ALREADY_REVERSED", http.StatusConflict, "Transaction already reversed")
	ErrDuplicateIdempotency = New("DUPLICATE_IDEMPOTENCY", http.StatusConflict, "Idempotency key already used")
)

// Upstream
var (
	ErrUpstreamUnavailable = New("UPSTREAM_UNAVAILABLE", http.StatusServiceUnavailable, "Upstream service unavailable")
	ErrCircuitOpen         = New("CIRCUIT_OPEN", http.StatusServiceUnavailable, "Upstream circuit breaker is open")
	ErrUpstreamRejected    = New("UPSTREAM_REJECTED", http.StatusUnprocessableEntity, "Upstream service rejected the operation")
)

// Internal
var (
	ErrManualActionRequired = New("MANUAL_ACTION_REQUIRED", http.StatusInternalServerError, "Manual operator action required")
)

package domain

import (
	"errors"
	"fmt"
)

// Stable error codes. Calling layers map on these, never on messages.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodeDuplicateReference = "DUPLICATE_REFERENCE"
	CodePoolNotFound       = "POOL_NOT_FOUND"
	CodeAlreadyPaidOut     = "ALREADY_PAID_OUT"
	CodePersistence        = "PERSISTENCE_FAILURE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError is the base domain error type.
type AppError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    int    `json:"-"`
	Retryable bool   `json:"retryable,omitempty"`
	Cause     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// ErrorCode returns the stable code for err, or CodeInternal when err is not an AppError.
func ErrorCode(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	return ErrorCode(err) == code
}

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

func ErrInsufficientFunds(currency Currency) *AppError {
	return &AppError{Code: CodeInsufficientFunds, Message: fmt.Sprintf("insufficient %s balance", currency), Status: 422}
}

func ErrInvalidSignature(cause error) *AppError {
	return &AppError{Code: CodeInvalidSignature, Message: "payment event signature rejected", Status: 400, Cause: cause}
}

// ErrDuplicateReference signals a violated idempotency constraint. The wallet
// service converts it into an idempotent success; it only escapes for raw appends.
func ErrDuplicateReference(key IdempotencyKey) *AppError {
	return &AppError{
		Code:    CodeDuplicateReference,
		Message: fmt.Sprintf("transaction already recorded for %s/%s/%s", key.ReferenceType, key.ReferenceID, key.Kind),
		Status:  409,
	}
}

func ErrPoolNotFound(tournamentID string) *AppError {
	return &AppError{Code: CodePoolNotFound, Message: fmt.Sprintf("prize pool for tournament %s not found", tournamentID), Status: 404}
}

func ErrAlreadyPaidOut(tournamentID string) *AppError {
	return &AppError{Code: CodeAlreadyPaidOut, Message: fmt.Sprintf("prize pool for tournament %s already paid out", tournamentID), Status: 409}
}

// ErrPersistence marks a transient storage failure. Callers are expected to retry.
func ErrPersistence(op string, cause error) *AppError {
	return &AppError{Code: CodePersistence, Message: op, Status: 503, Retryable: true, Cause: cause}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429, Retryable: true}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}

package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeUnauthorized       ErrorType = "unauthorized"
	ErrorTypeForbidden          ErrorType = "forbidden"
	ErrorTypeApprovalConflict   ErrorType = "approval_conflict"
	ErrorTypeModeSwitchConflict ErrorType = "mode_switch_conflict"
	ErrorTypeDispatch           ErrorType = "dispatch"
	ErrorTypeAuditWrite         ErrorType = "audit_write"
	ErrorTypeRateLimit          ErrorType = "rate_limit"
	ErrorTypeInternal           ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. Two domain errors match when they share a type.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. Use them with errors.Is; build fresh errors with
// NewDomainError when details are attached.

var (
	// Not Found Errors
	ErrActionNotFound     = NewDomainError(ErrorTypeNotFound, "action not found", nil)
	ErrInvocationNotFound = NewDomainError(ErrorTypeNotFound, "invocation not found", nil)
	ErrAdapterNotFound    = NewDomainError(ErrorTypeNotFound, "no adapter registered for channel", nil)

	// Validation Errors
	ErrInvalidInput      = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidParameters = NewDomainError(ErrorTypeValidation, "invalid parameters", nil)
	ErrUnknownChannel    = NewDomainError(ErrorTypeValidation, "unknown channel", nil)
	ErrInvalidMode       = NewDomainError(ErrorTypeValidation, "invalid mode", nil)
	ErrInvalidDecision   = NewDomainError(ErrorTypeValidation, "decision must be approve or reject", nil)

	// Authorization Errors
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)

	// Permission Errors
	ErrForbidden        = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrApproverMismatch = NewDomainError(ErrorTypeForbidden, "approver does not match authenticated operator", nil)

	// Conflict Errors
	ErrApprovalConflict   = NewDomainError(ErrorTypeApprovalConflict, "invocation is not pending approval", nil)
	ErrInvalidTransition  = NewDomainError(ErrorTypeApprovalConflict, "invocation is not in a dispatchable state", nil)
	ErrModeSwitchConflict = NewDomainError(ErrorTypeModeSwitchConflict, "mode changed concurrently", nil)

	// Dispatch Errors
	ErrDispatchFailed = NewDomainError(ErrorTypeDispatch, "dispatch failed", nil)

	// Audit Errors
	ErrAuditWriteFailed = NewDomainError(ErrorTypeAuditWrite, "audit write failed", nil)

	// Rate Limit Errors
	ErrRateLimitExceeded = NewDomainError(ErrorTypeRateLimit, "dispatch rate limit exceeded", nil)

	// Internal Errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrQueueFull     = NewDomainError(ErrorTypeInternal, "dispatch queue is full", nil)
	ErrQueueStopped  = NewDomainError(ErrorTypeInternal, "dispatch queue is stopped", nil)
)

// Error type checking helper functions

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return hasType(err, ErrorTypeForbidden)
}

// IsApprovalConflictError checks if a decision or dispatch hit an invocation in the wrong state
func IsApprovalConflictError(err error) bool {
	return hasType(err, ErrorTypeApprovalConflict)
}

// IsModeSwitchConflictError checks if a mode switch lost a race
func IsModeSwitchConflictError(err error) bool {
	return hasType(err, ErrorTypeModeSwitchConflict)
}

// IsDispatchError checks if an adapter call failed after retries
func IsDispatchError(err error) bool {
	return hasType(err, ErrorTypeDispatch)
}

// IsAuditWriteError checks if an audit append failed
func IsAuditWriteError(err error) bool {
	return hasType(err, ErrorTypeAuditWrite)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return hasType(err, ErrorTypeRateLimit)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapAuditWrite wraps a storage failure during an audit append
func WrapAuditWrite(message string, err error) error {
	return NewDomainError(ErrorTypeAuditWrite, message, err)
}

// WrapDispatch wraps an exhausted adapter failure
func WrapDispatch(message string, err error) error {
	return NewDomainError(ErrorTypeDispatch, message, err)
}

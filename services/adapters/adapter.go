// Package adapters defines the contract between the dispatcher and the
// transports that actually reach email, SMS and HTTP endpoints.
package adapters

import (
	"context"
	"errors"

	"github.com/upb/action-gate/models"
)

// ChannelAdapter delivers a payload to a destination on one channel
type ChannelAdapter interface {
	// Channel returns the channel this adapter serves
	Channel() models.Channel

	// Send delivers payload to destination. The destination has already been
	// resolved for the current mode; adapters never rewrite it.
	Send(ctx context.Context, destination string, payload models.Payload) (*Result, error)
}

// Result is what an adapter reports on success
type Result struct {
	// Reference is the downstream identifier of the delivery, if any
	Reference string `json:"reference,omitempty"`

	// StatusCode is the transport status (HTTP adapters only)
	StatusCode int `json:"status_code,omitempty"`
}

// AdapterError represents a failed delivery
type AdapterError struct {
	// Adapter that generated the error
	Adapter string

	// Code is a short machine readable code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the transport status code (if applicable)
	StatusCode int

	// Retryable indicates the send may succeed if repeated
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *AdapterError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// NewAdapterError creates a new adapter error
func NewAdapterError(adapter, code, message string, statusCode int, retryable bool, cause error) *AdapterError {
	return &AdapterError{
		Adapter:    adapter,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable reports whether err is worth another attempt. Errors that are
// not AdapterErrors are treated as transient, except context cancellation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var adErr *AdapterError
	if errors.As(err, &adErr) {
		return adErr.Retryable
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

package api

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError          ErrorType = "server_error"
	ErrorTypeInvalidRequest       ErrorType = "invalid_request"
	ErrorTypeTooManyRequests      ErrorType = "too_many_requests"
	ErrorTypeForbidden            ErrorType = "forbidden"
	ErrorTypeUnknownTool          ErrorType = "unknown_tool"
	ErrorTypeDuplicateAdapterID   ErrorType = "duplicate_adapter_id"
	ErrorTypeAdapterUnavailable   ErrorType = "adapter_unavailable"
	ErrorTypeUpstreamRejected     ErrorType = "upstream_rejected"
	ErrorTypeVerificationFailed   ErrorType = "verification_failed"
	ErrorTypeProviderNotAllowed   ErrorType = "provider_not_allowed"
	ErrorTypeDiscoverySourceError ErrorType = "discovery_source_unreadable"
)

// APIError represents a structured API error.
// Status carries the HTTP status to present; zero means "derive from Type".
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	Status  int       `json:"status,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatus returns the explicit status if set, otherwise the default
// status for the error type.
func (e *APIError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeUnknownTool:
		return http.StatusNotFound
	case ErrorTypeVerificationFailed:
		return http.StatusUnauthorized
	case ErrorTypeForbidden, ErrorTypeProviderNotAllowed:
		return http.StatusForbidden
	case ErrorTypeDuplicateAdapterID:
		return http.StatusConflict
	case ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrorTypeAdapterUnavailable:
		return http.StatusBadGateway
	case ErrorTypeUpstreamRejected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(message string) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Message: message}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{Type: ErrorTypeServerError, Message: message}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{Type: ErrorTypeTooManyRequests, Message: message}
}

// NewForbiddenError creates an APIError for authenticated callers that are
// not permitted to proceed.
func NewForbiddenError(message string) *APIError {
	return &APIError{Type: ErrorTypeForbidden, Message: message}
}

// NewUnknownToolError creates an APIError for a tool no adapter exposes.
func NewUnknownToolError(tool string) *APIError {
	return &APIError{
		Type:    ErrorTypeUnknownTool,
		Message: fmt.Sprintf("unknown tool %q", tool),
	}
}

// NewAdapterUnavailableError creates an APIError for an unreachable or
// timed-out upstream.
func NewAdapterUnavailableError(message string) *APIError {
	return &APIError{Type: ErrorTypeAdapterUnavailable, Message: message}
}

// NewUpstreamRejectedError creates an APIError that passes a non-retryable
// upstream status through to the caller.
func NewUpstreamRejectedError(status int, message string) *APIError {
	return &APIError{Type: ErrorTypeUpstreamRejected, Message: message, Status: status}
}

// NewVerificationFailedError creates an APIError for rejected credentials.
// The message is deliberately generic.
func NewVerificationFailedError(status int) *APIError {
	return &APIError{
		Type:    ErrorTypeVerificationFailed,
		Message: "authentication required",
		Status:  status,
	}
}

// NewProviderNotAllowedError creates an APIError for a provider outside
// the operator allow-list.
func NewProviderNotAllowedError(provider string) *APIError {
	return &APIError{
		Type:    ErrorTypeProviderNotAllowed,
		Message: fmt.Sprintf("provider %q is not allowed", provider),
	}
}

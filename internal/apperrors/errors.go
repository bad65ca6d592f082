package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError is malformed or semantically invalid input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError is a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func NewNotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError is an illegal state transition, duplicate enrollment or a
// delete blocked by active references. The entity is left unchanged.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func NewConflict(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// RateLimitedError means the caller must back off; it is not a hard failure.
type RateLimitedError struct {
	Service string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for service %s", e.Service)
}

func NewRateLimited(service string) error {
	return &RateLimitedError{Service: service}
}

// ProviderError is a vendor API failure. Retried with backoff at the job
// level up to max_attempts, then dead-lettered.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s returned %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

func NewProvider(provider string, statusCode int, message string) error {
	return &ProviderError{Provider: provider, StatusCode: statusCode, Message: message}
}

// WebhookSignatureError is an inbound webhook that failed signature
// verification. Rejected outright, never processed.
type WebhookSignatureError struct {
	Provider string
}

func (e *WebhookSignatureError) Error() string {
	return fmt.Sprintf("invalid webhook signature for provider %s", e.Provider)
}

func NewWebhookSignature(provider string) error {
	return &WebhookSignatureError{Provider: provider}
}

// HTTPStatus maps an error to the status code the API surfaces it with.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
		rl *RateLimitedError
		pe *ProviderError
		ws *WebhookSignatureError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &rl):
		return http.StatusTooManyRequests
	case errors.As(err, &ws):
		return http.StatusUnauthorized
	case errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package domain

import (
	"fmt"
	"strings"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotConfigured = "NOT_CONFIGURED"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeProviderAuth  = "PROVIDER_AUTH"
	ErrCodeSchemaMissing = "SCHEMA_MISSING"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Configuration errors surface before any provider or storage call is made;
// they require operator correction, not a retry.
var (
	ErrEmbeddingNotConfigured = NewDomainError(ErrCodeNotConfigured, "embedding provider not configured: OPENAI_API_KEY required")
	ErrChatNotConfigured      = NewDomainError(ErrCodeNotConfigured, "chat model not configured: OPENAI_API_KEY required")
)

// Provider errors distinguish retryable quota exhaustion from rejected
// credentials so callers can decide between waiting and reconfiguring.
var (
	ErrProviderQuotaExceeded = NewDomainError(ErrCodeRateLimited, "embedding provider quota exceeded, retry later")
	ErrProviderAuthRejected  = NewDomainError(ErrCodeProviderAuth, "embedding provider rejected credentials")
)

// Storage errors
var (
	ErrSchemaMissing = NewDomainError(ErrCodeSchemaMissing, "chunks table does not exist, run migrations")
)

// Validation errors
var (
	ErrEmptyQuery         = NewDomainError(ErrCodeValidation, "query must not be empty")
	ErrWrongDimensions    = NewDomainError(ErrCodeValidation, "embedding has wrong dimensionality")
	ErrEmptyMessageList   = NewDomainError(ErrCodeValidation, "messages must not be empty")
	ErrInvalidMessageRole = NewDomainError(ErrCodeValidation, "message role must be user, assistant, or system")
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError carries every violated field of one request so the caller
// can correct them all at once.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("[%s] %s", ErrCodeValidation, strings.Join(parts, "; "))
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quarrylabs/quarry/internal/domain"
)

// ErrorResponse represents an error API response. Details carries per-field
// validation problems so a caller can correct each field independently.
type ErrorResponse struct {
	Error   string        `json:"error"`
	Details []FieldDetail `json:"details,omitempty"`
}

// FieldDetail is one invalid field in an error response.
type FieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// ValidationFailed writes a 400 response listing every invalid field.
func ValidationFailed(w http.ResponseWriter, fields []domain.FieldError) {
	details := make([]FieldDetail, 0, len(fields))
	for _, f := range fields {
		details = append(details, FieldDetail{Field: f.Field, Message: f.Message})
	}
	JSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: details})
}

// DomainErrorToHTTP maps domain errors to HTTP status codes
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}

	switch domainErr.Code {
	case domain.ErrCodeValidation:
		return http.StatusBadRequest
	case domain.ErrCodeNotConfigured:
		return http.StatusServiceUnavailable
	case domain.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case domain.ErrCodeProviderAuth:
		return http.StatusUnauthorized
	case domain.ErrCodeSchemaMissing:
		return http.StatusInternalServerError
	case domain.ErrCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes an appropriate error response based on the error type
func HandleError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		ValidationFailed(w, validationErr.Fields)
		return
	}

	status := DomainErrorToHTTP(err)
	Error(w, status, err.Error())
}

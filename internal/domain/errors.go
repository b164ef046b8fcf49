package domain

import (
	"fmt"
	"strings"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeDatabase     = "DATABASE_ERROR"
	ErrCodeRateLimit    = "RATE_LIMIT_EXCEEDED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeExtraction   = "EXTRACTION_FAILED"
	ErrCodeUnavailable  = "SERVICE_UNAVAILABLE"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors collects every field failure of one record
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// DataInconsistency is a non-fatal mismatch between a trial and a patient, e.g. a
// biomarker criterion naming a marker the patient's panel does not carry. It is
// logged, never returned to callers of the matcher.
type DataInconsistency struct {
	NCTNumber string
	Marker    string
	Criterion string
}

func (d *DataInconsistency) Error() string {
	return fmt.Sprintf("trial %s references %s which is not part of the patient's panel (%q)", d.NCTNumber, d.Marker, d.Criterion)
}

// ExtractionStage names where an upstream extraction failed
type ExtractionStage string

const (
	STAGE_DOCUMENT ExtractionStage = "document"
	STAGE_LLM      ExtractionStage = "llm"
	STAGE_MAPPING  ExtractionStage = "mapping"
)

// ExtractionError wraps failures of document or LLM extraction
type ExtractionError struct {
	Stage ExtractionStage
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction failed: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewExtractionError wraps err with the failing stage
func NewExtractionError(stage ExtractionStage, err error) *ExtractionError {
	return &ExtractionError{Stage: stage, Err: err}
}

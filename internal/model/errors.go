// Package model defines the domain entities and the error taxonomy shared
// across the pipeline.
package model

import (
	"fmt"
	"time"
)

// ErrorCode classifies a PipelineError into one of the kinds named by
// spec.md §7. It is a kind, not a Go type hierarchy — callers switch on
// Code rather than type-asserting concrete error structs.
type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeInputInvalid      ErrorCode = "INPUT_INVALID"
	ErrCodeStorageError      ErrorCode = "STORAGE_ERROR"
	ErrCodeIoError           ErrorCode = "IO_ERROR"
	ErrCodeExtractorError    ErrorCode = "EXTRACTOR_ERROR"
	ErrCodeLlmTransportError ErrorCode = "LLM_TRANSPORT_ERROR"
	ErrCodeLlmParseError     ErrorCode = "LLM_PARSE_ERROR"
	ErrCodeVisionNotConfig   ErrorCode = "VISION_NOT_CONFIGURED"
)

// PipelineError is the single error type the core returns. It wraps an
// underlying cause (if any) and carries enough context for callers to
// decide whether to surface it, log it, or recover it into document state.
type PipelineError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Entity    string    `json:"entity,omitempty"`
	EntityID  string    `json:"entity_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

func (e *PipelineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.cause }

// Is lets errors.Is(err, model.ErrNotFound) match any PipelineError sharing
// the sentinel's code, regardless of message or cause.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newErr(code ErrorCode, message string, cause error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Timestamp: time.Now(), cause: cause}
}

func NewNotFoundError(entity, id string) *PipelineError {
	e := newErr(ErrCodeNotFound, fmt.Sprintf("%s not found", entity), nil)
	e.Entity, e.EntityID = entity, id
	return e
}

func NewConflictError(message string) *PipelineError {
	return newErr(ErrCodeConflict, message, nil)
}

func NewInputInvalidError(message string) *PipelineError {
	return newErr(ErrCodeInputInvalid, message, nil)
}

func NewStorageError(message string, cause error) *PipelineError {
	return newErr(ErrCodeStorageError, message, cause)
}

func NewIoError(message string, cause error) *PipelineError {
	return newErr(ErrCodeIoError, message, cause)
}

func NewExtractorError(message string, cause error) *PipelineError {
	return newErr(ErrCodeExtractorError, message, cause)
}

func NewLlmTransportError(message string, cause error) *PipelineError {
	return newErr(ErrCodeLlmTransportError, message, cause)
}

func NewLlmParseError(message string, cause error) *PipelineError {
	return newErr(ErrCodeLlmParseError, message, cause)
}

func NewVisionNotConfiguredError() *PipelineError {
	return newErr(ErrCodeVisionNotConfig, "vision_model_name is not configured", nil)
}

// Sentinels for errors.Is comparisons against a bare code, e.g.
// errors.Is(err, model.ErrNotFound).
var (
	ErrNotFound = &PipelineError{Code: ErrCodeNotFound}
	ErrConflict = &PipelineError{Code: ErrCodeConflict}
)

// IsCode reports whether err is a *PipelineError with the given code.
func IsCode(err error, code ErrorCode) bool {
	pe, ok := err.(*PipelineError)
	return ok && pe.Code == code
}

// Package errors defines the structured error types used across the
// ingestion and rendering pipeline, categorized so callers can route an
// archive to the error directory or degrade a single field without
// inspecting error strings.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeParse    ErrorType = "parse"
	ErrorTypeTemplate ErrorType = "template"
	ErrorTypeRender   ErrorType = "render"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeInternal ErrorType = "internal"
)

// PipelineError is a structured error type with archive context.
type PipelineError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Archive     string
	JoinKey     string
	Recoverable bool
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.Archive != "" {
		location := e.Archive
		if e.JoinKey != "" {
			location += ":" + e.JoinKey
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithArchive records which archive (and optionally which debtor join key)
// the error belongs to.
func (e *PipelineError) WithArchive(archive, joinKey string) *PipelineError {
	e.Archive = archive
	e.JoinKey = joinKey

	return e
}

// WithComponent adds component context.
func (e *PipelineError) WithComponent(component string) *PipelineError {
	e.Component = component

	return e
}

// Error creation functions

// NewParseError creates a structural parse error. Structural parse errors
// abort the whole archive.
func NewParseError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeParse,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewTemplateError creates a template resolution error.
func NewTemplateError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeTemplate,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewRenderError creates a document conversion error carrying the
// collaborator's original failure as its cause.
func NewRenderError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeRender,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Error classification utilities

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}

	return false
}

// IsParseError checks if an error is a structural parse error.
func IsParseError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeParse
	}

	return false
}

// IsRenderError checks if an error is a render conversion error.
func IsRenderError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeRender
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle processes an error with appropriate logging.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var pe *PipelineError
	if !errors.As(err, &pe) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch pe.Type {
	case ErrorTypeTemplate:
		h.logger.Warn(ctx, pe, "Template resolution degraded",
			"type", pe.Type,
			"code", pe.Code,
			"archive", pe.Archive,
			"joinKey", pe.JoinKey)
	default:
		h.logger.Error(ctx, pe, "Pipeline error occurred",
			"type", pe.Type,
			"code", pe.Code,
			"component", pe.Component,
			"archive", pe.Archive)
	}
}

// Common error codes.
const (
	ErrCodeMetaMissing    = "ERR_META_MISSING"
	ErrCodeNoDataFormat   = "ERR_NO_DATA_FORMAT"
	ErrCodeArchiveCorrupt = "ERR_ARCHIVE_CORRUPT"
	ErrCodeMarkerOrphan   = "ERR_MARKER_ORPHAN"
	ErrCodeTemplateFailed = "ERR_TEMPLATE_FAILED"
	ErrCodeRenderFailed   = "ERR_RENDER_FAILED"
	ErrCodePermitTimeout  = "ERR_PERMIT_TIMEOUT"
	ErrCodeMoveFailed     = "ERR_MOVE_FAILED"
	ErrCodeWriteFailed    = "ERR_WRITE_FAILED"
	ErrCodeConfigInvalid  = "ERR_CONFIG_INVALID"
	ErrCodeInternalError  = "ERR_INTERNAL"
)

// Helper functions for common errors

// ErrMetaMissing creates the structural error for an archive without a meta
// descriptor entry.
func ErrMetaMissing(archive string) *PipelineError {
	return NewParseError(ErrCodeMetaMissing, "archive has no meta descriptor entry", nil).
		WithArchive(archive, "")
}

// ErrNoDataFormat creates the structural error for an archive carrying
// neither a delimited-text pair nor a notes XML document.
func ErrNoDataFormat(archive string) *PipelineError {
	return NewParseError(ErrCodeNoDataFormat, "archive has no recognized data format", nil).
		WithArchive(archive, "")
}

// ErrMarkerOrphan creates the data error for a marker whose sibling archive
// does not exist on disk.
func ErrMarkerOrphan(marker string) *PipelineError {
	return NewParseError(ErrCodeMarkerOrphan, "marker has no matching archive", nil).
		WithArchive(marker, "")
}

// ErrPermitTimeout creates the render error for a permit that could not be
// acquired in time.
func ErrPermitTimeout(cause error) *PipelineError {
	return NewRenderError(ErrCodePermitTimeout, "timed out waiting for render permit", cause)
}

package quench

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an error
type ErrorType string

const (
	// ErrorTypeConfig represents configuration-related errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeWalk represents tree-traversal errors
	ErrorTypeWalk ErrorType = "walk"
	// ErrorTypeRead represents file-content loading errors
	ErrorTypeRead ErrorType = "read"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypeCheck represents errors raised inside a check
	ErrorTypeCheck ErrorType = "check"
)

// AppError is a custom error type that provides context about the error
type AppError struct {
	Type    ErrorType // The category of the error
	Message string    // A human-readable error message
	Err     error     // The underlying error, if any
	File    string    // The file related to the error, if applicable
	Details string    // Additional details about the error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithFile adds file information to the error
func (e *AppError) WithFile(file string) *AppError {
	e.File = file
	return e
}

// WithDetails adds additional details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewConfigError creates a new configuration error
func NewConfigError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeConfig, Message: message, Err: err}
}

// NewWalkError creates a new traversal error
func NewWalkError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeWalk, Message: message, Err: err}
}

// NewReadError creates a new content-loading error
func NewReadError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeRead, Message: message, Err: err}
}

// NewCacheError creates a new cache error
func NewCacheError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeCache, Message: message, Err: err}
}

// NewCheckError creates a new check-execution error
func NewCheckError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeCheck, Message: message, Err: err}
}

// ErrorInfo carries the extracted context of an AppError for callers that
// only want to report it.
type ErrorInfo struct {
	Type    ErrorType
	File    string
	Details string
}

// GetErrorInfo extracts AppError context from an error chain.
func GetErrorInfo(err error) (ErrorInfo, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return ErrorInfo{Type: appErr.Type, File: appErr.File, Details: appErr.Details}, true
	}
	return ErrorInfo{}, false
}

// TooLargeError reports a file that exceeds the reader's size ceiling.
// Callers treat the file as skipped, never as a check failure.
type TooLargeError struct {
	Path string
	Size int64
}

// Error implements the error interface
func (e *TooLargeError) Error() string {
	return fmt.Sprintf("file %s is too large to scan (%d bytes, limit %d)", e.Path, e.Size, MaxReadSize)
}

// IsTooLarge reports whether err marks an oversized file.
func IsTooLarge(err error) bool {
	var tle *TooLargeError
	return errors.As(err, &tle)
}

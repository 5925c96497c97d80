package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes for the pipeline failure taxonomy.
const (
	CodeFileAccess  = "FILE_ACCESS_ERROR"
	CodeEngineInit  = "ENGINE_INIT_ERROR"
	CodeProcessing  = "PROCESSING_ERROR"
	CodePersistence = "PERSISTENCE_ERROR"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrQueueClosed  = errors.New("queue is closed")
)

// NewAppError builds an arbitrary coded error.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// FileAccessError reports an I/O failure on a source path. Fatal to that
// single file only.
func FileAccessError(path string, cause error) *AppError {
	return &AppError{
		Code:    CodeFileAccess,
		Message: fmt.Sprintf("cannot access file %q", path),
		Cause:   cause,
	}
}

// EngineInitError reports a failed engine construction. The engine name
// stays unregistered; a later call may retry.
func EngineInitError(engine, reason string, cause error) *AppError {
	return &AppError{
		Code:    CodeEngineInit,
		Message: fmt.Sprintf("failed to initialize engine %q: %s", engine, reason),
		Cause:   cause,
	}
}

// ProcessingError reports a rendering or recognition failure mid-document.
// Aborts that document only.
func ProcessingError(path, reason string, cause error) *AppError {
	return &AppError{
		Code:    CodeProcessing,
		Message: fmt.Sprintf("processing failed for %q: %s", path, reason),
		Cause:   cause,
	}
}

// PersistenceError reports a failed store transaction.
func PersistenceError(op string, cause error) *AppError {
	return &AppError{
		Code:    CodePersistence,
		Message: fmt.Sprintf("persistence failed: %s", op),
		Cause:   cause,
	}
}

// HasCode reports whether err carries the given application error code.
func HasCode(err error, code string) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

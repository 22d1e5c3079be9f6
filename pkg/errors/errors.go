package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error sentinel values usable throughout the application
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternalError     = errors.New("internal error")
	ErrNotImplemented    = errors.New("not implemented")
	ErrTimeout           = errors.New("operation timed out")
	ErrUnavailable       = errors.New("service unavailable")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrCanceled          = errors.New("operation canceled")

	// Domain-specific error sentinel values
	ErrSessionNotFound     = errors.New("call session not found")
	ErrSessionAlreadyExist = errors.New("call session already exists")
	ErrSessionTerminated   = errors.New("call session terminated")
	ErrInvalidTransition   = errors.New("invalid call state transition")
	ErrInvalidMetadata     = errors.New("invalid call metadata")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrSynthesisFailed     = errors.New("speech synthesis failed")
	ErrResponseFailed      = errors.New("response generation failed")
	ErrDialFailed          = errors.New("outbound dial failed")
)

// Error is a structured error carrying a wrapped cause, contextual fields,
// an optional code and the location where it was created.
type Error struct {
	original error
	message  string
	fields   map[string]interface{}
	file     string
	line     int

	// Code is an optional error code for categorization
	Code string
}

func newError(skip int, cause error, message string, fields ...map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(skip + 1)

	fieldMap := make(map[string]interface{})
	if len(fields) > 0 && fields[0] != nil {
		fieldMap = fields[0]
	}

	return &Error{
		original: cause,
		message:  message,
		fields:   fieldMap,
		file:     file,
		line:     line,
	}
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	return newError(1, errors.New(message), message, fields...)
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	return newError(1, err, message, fields...)
}

// WithField returns a copy of the error with one extra context field
func (e *Error) WithField(key string, value interface{}) *Error {
	return e.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a copy of the error with extra context fields
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}

	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+len(fields)),
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}
	for k, v := range e.fields {
		result.fields[k] = v
	}
	for k, v := range fields {
		result.fields[k] = v
	}
	return result
}

// WithCode returns a copy of the error with the given code
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}

	result := *e
	result.Code = code
	return &result
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}
	if e.message == "" {
		return e.original.Error()
	}
	if e.message == e.original.Error() {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}
	parts := strings.Split(e.file, "/")
	return fmt.Sprintf("%s:%d", parts[len(parts)-1], e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// GetCode returns the error's code
func (e *Error) GetCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// Is reports whether any error in err's tree matches target
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if errors.Is(e.original, target) {
		return true
	}
	return e == target
}

// AsJSON returns the error in JSON-friendly map format
func (e *Error) AsJSON() map[string]interface{} {
	if e == nil {
		return nil
	}

	result := map[string]interface{}{
		"message":  e.Error(),
		"location": e.Location(),
	}
	if e.Code != "" {
		result["code"] = e.Code
	}
	if len(e.fields) > 0 {
		result["context"] = e.fields
	}
	return result
}

func newSentinel(sentinel error, code, message string, fields ...map[string]interface{}) *Error {
	err := newError(2, sentinel, message, fields...)
	err.Code = code
	return err
}

// NewNotFound creates a new ErrNotFound error with additional context
func NewNotFound(message string, fields ...map[string]interface{}) *Error {
	return newSentinel(ErrNotFound, "NOT_FOUND", message, fields...)
}

// NewInvalidInput creates a new ErrInvalidInput error with additional context
func NewInvalidInput(message string, fields ...map[string]interface{}) *Error {
	return newSentinel(ErrInvalidInput, "INVALID_INPUT", message, fields...)
}

// NewInternalError creates a new ErrInternalError with additional context
func NewInternalError(message string, fields ...map[string]interface{}) *Error {
	return newSentinel(ErrInternalError, "INTERNAL_ERROR", message, fields...)
}

// NewNotImplemented creates a new ErrNotImplemented error with additional context
func NewNotImplemented(message string, fields ...map[string]interface{}) *Error {
	return newSentinel(ErrNotImplemented, "NOT_IMPLEMENTED", message, fields...)
}

// NewSessionNotFound creates a new ErrSessionNotFound with the session ID attached
func NewSessionNotFound(sessionID string, fields ...map[string]interface{}) *Error {
	err := newSentinel(ErrSessionNotFound, "SESSION_NOT_FOUND",
		fmt.Sprintf("call session not found: %s", sessionID), fields...)
	return err.WithField("session_id", sessionID)
}

// NewSessionTerminated creates a new ErrSessionTerminated with the session ID attached
func NewSessionTerminated(sessionID string, fields ...map[string]interface{}) *Error {
	err := newSentinel(ErrSessionTerminated, "SESSION_TERMINATED",
		fmt.Sprintf("call session terminated: %s", sessionID), fields...)
	return err.WithField("session_id", sessionID)
}

// NewInvalidTransition creates a new ErrInvalidTransition describing the rejected move
func NewInvalidTransition(from, to string, fields ...map[string]interface{}) *Error {
	err := newSentinel(ErrInvalidTransition, "INVALID_TRANSITION",
		fmt.Sprintf("invalid call state transition: %s -> %s", from, to), fields...)
	return err.WithFields(map[string]interface{}{"from": from, "to": to})
}

// NewInvalidMetadata creates a new ErrInvalidMetadata with additional context
func NewInvalidMetadata(details string, fields ...map[string]interface{}) *Error {
	return newSentinel(ErrInvalidMetadata, "INVALID_METADATA",
		fmt.Sprintf("invalid call metadata: %s", details), fields...)
}

// IsErrorType checks if an error is of a specific error type
func IsErrorType(err, target error) bool {
	return errors.Is(err, target)
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetCode()
	}
	return ""
}

// GetErrorFields extracts fields from an error if it's a structured error
func GetErrorFields(err error) map[string]interface{} {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetFields()
	}
	return nil
}

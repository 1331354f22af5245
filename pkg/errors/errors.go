// Package errors provides structured error types for the phpup provisioning engine.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and library callers
//   - Machine-readable error codes for programmatic handling
//   - The build stage that failed and whether retrying can help
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes mirror the provisioning failure taxonomy:
//   - UNSUPPORTED_CAPABILITY: no driver and no generic fallback
//   - MIRROR_EXHAUSTED: every URL of a mirror set failed
//   - INTEGRITY_MISMATCH: checksum failure for one URL (recovered by the acquirer)
//   - DEPENDENCY_INSTALL_FAILED: OS package manager returned non-zero
//   - BUILD_STAGE_FAILED: configure, compile or install returned non-zero
//   - SOURCE_LAYOUT_UNRECOGNIZED: extraction produced no identifiable source root
//   - ALREADY_INSTALLED: pre-flight check refused to overwrite an install
//
// # Usage
//
//	err := errors.New(errors.ErrCodeAlreadyInstalled, "php %s is already installed", v)
//	if errors.Is(err, errors.ErrCodeAlreadyInstalled) {
//	    // Ask the user to remove it first
//	}
//
//	// Wrap existing errors and record the stage
//	err := errors.Wrap(errors.ErrCodeBuildStageFailed, runErr, "make exited with %d", code).
//	    AtStage("compile")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput     Code = "INVALID_INPUT"
	ErrCodeInvalidVersion   Code = "INVALID_VERSION"
	ErrCodeInvalidExtension Code = "INVALID_EXTENSION"
	ErrCodeInvalidConfig    Code = "INVALID_CONFIG"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeNotInstalled Code = "NOT_INSTALLED"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeTimeout Code = "TIMEOUT"

	// Provisioning errors
	ErrCodeUnsupportedCapability    Code = "UNSUPPORTED_CAPABILITY"
	ErrCodeMirrorExhausted          Code = "MIRROR_EXHAUSTED"
	ErrCodeIntegrityMismatch        Code = "INTEGRITY_MISMATCH"
	ErrCodeDependencyInstallFailed  Code = "DEPENDENCY_INSTALL_FAILED"
	ErrCodeBuildStageFailed         Code = "BUILD_STAGE_FAILED"
	ErrCodeSourceLayoutUnrecognized Code = "SOURCE_LAYOUT_UNRECOGNIZED"
	ErrCodeAlreadyInstalled         Code = "ALREADY_INSTALLED"
	ErrCodeLocked                   Code = "LOCKED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code        Code   // Machine-readable error code
	Message     string // Human-readable message
	Stage       string // Build stage that failed (optional)
	Output      string // Captured process output (optional)
	Recoverable bool   // Whether retrying the operation may succeed
	Cause       error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Code)
	if e.Stage != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Code, e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// AtStage records the build stage and returns e for chaining.
func (e *Error) AtStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithOutput attaches captured process output and returns e for chaining.
func (e *Error) WithOutput(output string) *Error {
	e.Output = output
	return e
}

// AsRecoverable marks e as recoverable and returns it for chaining.
func (e *Error) AsRecoverable() *Error {
	e.Recoverable = true
	return e
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetStage returns the first stage recorded along the error chain.
func GetStage(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Stage != "" {
			return e.Stage
		}
		err = e.Cause
	}
	return ""
}

// IsRecoverable reports whether the outermost *Error in the chain is marked recoverable.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}
	return false
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// Unified error handling for the toolpath library
//
// Copyright (C) 2026  gcode-toolpath authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// G-code ingestion
	ErrGCodeParse ErrorCode = "GCODE_PARSE"

	// Toolpath signals. These are recoverable and consumed inside a job.
	ErrNonPlanarPath ErrorCode = "TOOLPATH_NON_PLANAR"
	ErrUnitChange    ErrorCode = "TOOLPATH_UNIT_CHANGE"

	// Output
	ErrMeshExport ErrorCode = "MESH_EXPORT"

	// Preview server
	ErrServerRequest  ErrorCode = "SERVER_REQUEST"
	ErrServerNotFound ErrorCode = "SERVER_NOT_FOUND"

	// Runtime errors
	ErrRuntime ErrorCode = "RUNTIME"
)

// ToolpathError is the unified error type for the toolpath packages
type ToolpathError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Line is the 1-based G-code or config line number (0 if unknown)
	Line int

	// Section is the config section or context
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *ToolpathError) Error() string {
	where := e.Section
	if e.Option != "" {
		where = e.Option
	}
	msg := fmt.Sprintf("[%s:%s] %s", e.Code, where, e.Message)
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ToolpathError) Unwrap() error {
	return e.Err
}

// SetLine sets the line number
func (e *ToolpathError) SetLine(line int) *ToolpathError {
	e.Line = line
	return e
}

// SetSection sets the context section
func (e *ToolpathError) SetSection(section string) *ToolpathError {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *ToolpathError) SetOption(option string) *ToolpathError {
	e.Option = option
	return e
}

// SetContext adds additional context
func (e *ToolpathError) SetContext(key string, value interface{}) *ToolpathError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *ToolpathError {
	return &ToolpathError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new ToolpathError
func New(code ErrorCode, message string) *ToolpathError {
	return &ToolpathError{
		Code:    code,
		Message: message,
	}
}

// Config errors

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *ToolpathError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option string, reason string) *ToolpathError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

// ConfigTypeError creates an error for config type conversion failure
func ConfigTypeError(section, option, value string, targetType string, err error) *ToolpathError {
	return Wrap(err, ErrConfigType, fmt.Sprintf("option '%s' in section '%s': failed to parse '%s' as %s", option, section, value, targetType)).
		SetSection(section).
		SetOption(option)
}

// Toolpath signals

// NonPlanarPathError reports an extrusion path whose vertices leave one z plane.
func NonPlanarPathError(index int, zMin, zMax float64) *ToolpathError {
	return New(ErrNonPlanarPath, fmt.Sprintf("extrusion path %d spans z %.4f..%.4f", index, zMin, zMax)).
		SetContext("path", index)
}

// UnitChangeError reports a G20/G21 received after motion began.
func UnitChangeError(opcode string) *ToolpathError {
	return New(ErrUnitChange, fmt.Sprintf("%s ignored: units cannot change after motion began", opcode))
}

// Output and server errors

// MeshExportError wraps a failure writing a mesh file.
func MeshExportError(format string, err error) *ToolpathError {
	return Wrap(err, ErrMeshExport, fmt.Sprintf("write %s", format))
}

// NotFoundError creates an error for an unknown server resource.
func NotFoundError(kind, id string) *ToolpathError {
	return New(ErrServerNotFound, fmt.Sprintf("%s '%s' not found", kind, id))
}

// RequestError creates an error for a malformed server request.
func RequestError(message string) *ToolpathError {
	return New(ErrServerRequest, message)
}

// FromPanic converts a recovered panic value into an error. It must be fed the
// result of recover() called directly in the deferred function.
func FromPanic(r interface{}) *ToolpathError {
	if r == nil {
		return nil
	}
	switch x := r.(type) {
	case string:
		return New(ErrRuntime, fmt.Sprintf("panic: %s", x))
	case error:
		return Wrap(x, ErrRuntime, "panic")
	default:
		return New(ErrRuntime, fmt.Sprintf("panic: %v", x))
	}
}

// Is checks if err, or an error it wraps, carries the given code
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var tpErr *ToolpathError
		if !stderrors.As(err, &tpErr) {
			return false
		}
		if tpErr.Code == code {
			return true
		}
		err = tpErr.Err
	}
	return false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType)
}

// IsToolpath checks if error is one of the recoverable toolpath signals
func IsToolpath(err error) bool {
	return Is(err, ErrNonPlanarPath) || Is(err, ErrUnitChange)
}

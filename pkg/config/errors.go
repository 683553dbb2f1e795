// Package config parses INI-style configuration files with access tracking
// and validated typed getters.
package config

import (
	"fmt"

	"gcode-toolpath/pkg/errors"
)

// ConfigError represents a configuration error with context. Its cause is
// a coded errors.ToolpathError so errors.IsConfig matches it.
type ConfigError struct {
	Section string
	Option  string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Option != "" {
		return fmt.Sprintf("Option '%s' in section '%s': %s", e.Option, e.Section, e.Message)
	}
	if e.Section != "" {
		return fmt.Sprintf("Section '%s': %s", e.Section, e.Message)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new ConfigError.
func NewConfigError(section, option, message string) *ConfigError {
	return &ConfigError{
		Section: section,
		Option:  option,
		Message: message,
		Cause:   errors.ConfigValidationError(section, option, message),
	}
}

// ErrMissingOption returns an error for a required but missing option.
func ErrMissingOption(section, option string) *ConfigError {
	return &ConfigError{
		Section: section,
		Option:  option,
		Message: "must be specified",
		Cause: errors.New(errors.ErrConfigOption, "option not found").
			SetSection(section).SetOption(option),
	}
}

// ErrMissingSection returns an error for a missing section.
func ErrMissingSection(section string) *ConfigError {
	return &ConfigError{
		Section: section,
		Message: "section not found",
		Cause:   errors.ConfigSectionError(section),
	}
}

// ErrInvalidValue returns an error for an invalid value.
func ErrInvalidValue(section, option, value, expected string) *ConfigError {
	return &ConfigError{
		Section: section,
		Option:  option,
		Message: fmt.Sprintf("invalid value '%s', expected %s", value, expected),
		Cause:   errors.ConfigTypeError(section, option, value, expected, nil),
	}
}

// ErrOutOfRange returns an error for a value outside the allowed range.
func ErrOutOfRange(section, option string, value float64, constraint string) *ConfigError {
	msg := fmt.Sprintf("value %v %s", value, constraint)
	return &ConfigError{
		Section: section,
		Option:  option,
		Message: msg,
		Cause:   errors.ConfigValidationError(section, option, msg),
	}
}

// ErrInvalidChoice returns an error for an invalid choice value.
func ErrInvalidChoice(section, option, value string, choices []string) *ConfigError {
	msg := fmt.Sprintf("'%s' is not a valid choice (valid: %v)", value, choices)
	return &ConfigError{
		Section: section,
		Option:  option,
		Message: msg,
		Cause:   errors.ConfigValidationError(section, option, msg),
	}
}

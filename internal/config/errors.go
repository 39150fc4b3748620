package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/gridsync/internal/config/loader"
)

// Errors returned by configuration operations.
var (
	// ErrValidationFailed indicates a setting with an invalid value.
	ErrValidationFailed = errors.New("validation failed")

	// ErrUnknownSetting indicates a setting that does not exist.
	ErrUnknownSetting = errors.New("unknown setting")
)

// ParseError represents an error while parsing a configuration file.
type ParseError = loader.ParseError

// ValidationError describes a validation failure for a setting.
type ValidationError struct {
	// Path is the setting path that failed validation.
	Path string
	// Message describes the validation error.
	Message string
	// Value is the invalid value.
	Value any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %v)", e.Path, e.Message, e.Value)
}

// Is implements error matching for ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// UnknownSettingsError lists settings of a source that match no field.
type UnknownSettingsError struct {
	Source string
	Paths  []string
}

// Error implements the error interface.
func (e *UnknownSettingsError) Error() string {
	return fmt.Sprintf("%s: unknown settings %s", e.Source, strings.Join(e.Paths, ", "))
}

// Is implements error matching for UnknownSettingsError.
func (e *UnknownSettingsError) Is(target error) bool {
	return target == ErrUnknownSetting
}

package config

import (
	"fmt"
	"strings"
)

// ConfigError describes one invalid configuration value and how to fix it.
//
//nolint:revive // ConfigError reads better than Error at call sites
type ConfigError struct {
	Category string // "missing" or "invalid"
	Field    string // dotted key, e.g. "retry.max_backoff"
	Message  string
	Action   string
}

func (e *ConfigError) Error() string {
	parts := make([]string, 0, 4)
	if e.Category != "" {
		parts = append(parts, fmt.Sprintf("config_%s:", e.Category))
	}
	if e.Field != "" {
		parts = append(parts, e.Field)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Action != "" {
		parts = append(parts, "("+e.Action+")")
	}
	return strings.Join(parts, " ")
}

// NewMissingFieldError reports a required key that has no value.
func NewMissingFieldError(field string) *ConfigError {
	return &ConfigError{
		Category: "missing",
		Field:    field,
		Message:  "required",
		Action:   fmt.Sprintf("set %s or add %s to %s", EnvVar(field), field, DefaultFile),
	}
}

// NewInvalidFieldError reports a key whose value is not acceptable.
func NewInvalidFieldError(field, message string, validOptions []string) *ConfigError {
	err := &ConfigError{Category: "invalid", Field: field, Message: message}
	if len(validOptions) > 0 {
		err.Action = "must be one of: " + strings.Join(validOptions, ", ")
	}
	return err
}

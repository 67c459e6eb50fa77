package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to match them.
var (
	// ErrNotFound is returned by Store.Get on a miss. It is not a failure.
	ErrNotFound = errors.New("cache: key not found")

	// ErrClosed is returned when a closed store is used.
	ErrClosed = errors.New("cache: store closed")
)

// ConfigError reports an invalid store configuration.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache configuration error: %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("cache configuration error: %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a configuration error.
func NewConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: err}
}

// ConnectionError reports a failure to reach the store backend.
type ConnectionError struct {
	Op      string
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cache connection error: %s failed for %s: %v", e.Op, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NewConnectionError creates a connection error.
func NewConnectionError(op, address string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Address: address, Err: err}
}

// OperationError reports a failed store operation on a key.
type OperationError struct {
	Op  string
	Key string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("cache operation error: %s failed for key %q: %v", e.Op, e.Key, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// NewOperationError creates an operation error.
func NewOperationError(op, key string, err error) *OperationError {
	return &OperationError{Op: op, Key: key, Err: err}
}

// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Transaction errors
var (
	ErrTransactionNotFound         = errors.New("transaction not found")
	ErrTransactionAlreadyExists    = errors.New("transaction already exists")
	ErrTransactionAlreadyProcessed = errors.New("transaction already processed")
	ErrInvalidTransaction          = errors.New("invalid transaction")
)

// Infrastructure errors
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrSchedulerStopped  = errors.New("scheduler stopped")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

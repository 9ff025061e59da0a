package utils

import (
	"errors"
	"fmt"
)

var (
	ErrConfig = fmt.Errorf("Configuration error")
	ErrParse  = fmt.Errorf("Parse error")
)

type DetailedError interface {
	error
	Details() string
}

type commandError struct {
	message string
	details string
	cause   error
}

// NewCmdError returns an error carrying the output of a failed command.
func NewCmdError(cause error, message, details string) error {
	return &commandError{
		message: message,
		details: details,
		cause:   cause,
	}
}

func (c *commandError) Details() string {
	return c.details
}

func (c *commandError) Error() string {
	return c.message
}

func (c *commandError) Unwrap() error {
	return c.cause
}

// ErrorDetails returns the details of err if it, or an error it wraps,
// carries any.
func ErrorDetails(err error) string {
	var detailed DetailedError
	if errors.As(err, &detailed) {
		return detailed.Details()
	}
	return ""
}

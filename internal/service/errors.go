package service

import (
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying with backoff: network
// timeouts, 429s, and 5xx responses from the model endpoints. Anything
// not wrapped in TransientError is treated as permanent by the workers.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a retryable failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classifyStatus wraps err as transient when the HTTP status code indicates
// a retryable condition.
func classifyStatus(statusCode int, err error) error {
	if statusCode == 429 || statusCode >= 500 {
		return Transient(err)
	}
	return err
}

package news

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// RetryableError marks a storage or external dependency failure that the
// caller may retry.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable wraps err as retryable; nil stays nil.
func Retryable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Op: op, Err: err}
}

func IsRetryable(err error) bool {
	var target *RetryableError
	return errors.As(err, &target)
}

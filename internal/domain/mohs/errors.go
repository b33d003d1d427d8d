package mohs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrTransactionFailure = errors.New("transaction failure")
)

func notFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// txFailure wraps a store error raised inside a multi-write operation. Domain
// errors pass through unchanged so callers still see NotFound/InvalidArgument.
func txFailure(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrTransactionFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrTransactionFailure, op, err)
}

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrMalformedEvent        = errors.New("malformed payment event")
	ErrConditionalWriteLost  = errors.New("conditional write lost")
	ErrNotFound              = errors.New("not found")
	ErrInvalidPaymentType    = errors.New("invalid payment type")
	ErrApplicationNotPayable = errors.New("application is not payable")
	ErrAlreadyPaid           = errors.New("payment already completed")
	ErrInvalidAmount         = errors.New("amount must be positive")
)

// StoreError wraps an I/O failure from the persistence layer.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// Malformed returns an ErrMalformedEvent carrying the reason.
func Malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, fmt.Sprintf(format, args...))
}

package orm

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// StorageError wraps driver and connection failures from GORM
type StorageError struct {
	Inner error
}

func (e *StorageError) Error() string {
	return "storage failure: " + e.Inner.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Inner
}

// NotFoundError is returned when no row matches Key
type NotFoundError struct {
	Operation string
	Key       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: nothing found for %s", e.Operation, e.Key)
}

// ConflictError is a uniqueness violation: an index identity, a source
// digest or a remote registry that already exists
type ConflictError struct {
	Operation string
	Key       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s already exists", e.Operation, e.Key)
}

type BadInputError struct {
	Reason string
}

func (e *BadInputError) Error() string {
	return "bad input: " + e.Reason
}

// wrapErrorWithDetails creates a more specific error message
func wrapErrorWithDetails(err error, operation, details string) error {
	if err == nil {
		return nil
	}

	// already classified by a nested call
	var (
		storageErr  *StorageError
		notFoundErr *NotFoundError
		conflictErr *ConflictError
	)
	if errors.As(err, &storageErr) || errors.As(err, &notFoundErr) ||
		errors.As(err, &conflictErr) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Operation: operation, Key: details}
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &ConflictError{Operation: operation, Key: details}
	}

	return &StorageError{Inner: fmt.Errorf("%s: %w", operation, err)}
}

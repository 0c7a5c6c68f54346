package db

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyProcessed is returned by admission when a record with the same
	// correlation id already exists for the owner.
	ErrAlreadyProcessed = errors.New("message already processed")

	ErrMailboxNotFound = errors.New("mailbox not found")
	ErrMessageNotFound = errors.New("message not found")
)

// StorageError wraps every unexpected database failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

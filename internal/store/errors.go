package store

import (
	"errors"
	"fmt"
)

// Errors returned by store operations. Check them with errors.Is:
//
//	if errors.Is(err, store.ErrStorage) {
//	    // local persistence failed; the cache can't be trusted for this operation
//	}
var (
	// ErrStorage marks any failure of the local database.
	ErrStorage = errors.New("storage error")

	// ErrNotFound is returned when a requested shipment is not in the store.
	ErrNotFound = errors.New("shipment not found")

	// ErrInvalidDay is returned when an agenda query gets a malformed day.
	ErrInvalidDay = errors.New("invalid day")
)

// StorageError records which store operation failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrStorage and the driver error.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

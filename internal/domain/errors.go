package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyOrder        = errors.New("order has no items")
	ErrInsufficientCash  = errors.New("insufficient cash received")
	ErrInvalidBackup     = errors.New("invalid backup file")
	ErrDuplicateItem     = errors.New("menu item already exists")
	ErrLastItem          = errors.New("cannot remove the last menu item")
	ErrInvalidTransition = errors.New("invalid bill state transition")
	ErrBillInProgress    = errors.New("a bill is already in progress")
)

type InsufficientCashError struct {
	Received decimal.Decimal
	Total    decimal.Decimal
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient cash received: %s is less than total %s", e.Received.StringFixed(2), e.Total.StringFixed(2))
}

func (e *InsufficientCashError) Unwrap() error {
	return ErrInsufficientCash
}

// StorageWriteError reports the keys that failed during a multi-key save.
// Keys absent from Failures were committed.
type StorageWriteError struct {
	Failures map[string]error
}

func (e *StorageWriteError) Error() string {
	keys := e.Keys()
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", key, e.Failures[key]))
	}
	return "storage write failed (" + strings.Join(parts, "; ") + ")"
}

func (e *StorageWriteError) Keys() []string {
	keys := make([]string, 0, len(e.Failures))
	for key := range e.Failures {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (e *StorageWriteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, key := range e.Keys() {
		errs = append(errs, e.Failures[key])
	}
	return errs
}

// IsStorageWrite reports whether err carries a StorageWriteError, meaning
// the operation was applied in memory but not fully persisted.
func IsStorageWrite(err error) bool {
	var target *StorageWriteError
	return errors.As(err, &target)
}

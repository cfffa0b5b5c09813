package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable marks failures of the persistent store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDocumentIO marks failures reading or writing the knowledge document.
	ErrDocumentIO = errors.New("knowledge document i/o")
	// ErrEmptyPrompt is returned when a request carries no prompt text.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrNoCandidates is returned when the generator produced nothing usable.
	ErrNoCandidates = errors.New("no usable suggestions")
)

// StoreError wraps a persistent store failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is reports true for ErrStoreUnavailable so callers can branch on the category.
func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// DocumentError wraps a knowledge document failure.
type DocumentError struct {
	Op   string
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("knowledge %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

func (e *DocumentError) Is(target error) bool { return target == ErrDocumentIO }

package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks lookups for races or laps that don't exist.
	ErrNotFound = errors.New("not found")
	// ErrRaceNotReady rejects analysis requests for races whose
	// processing has not finished successfully.
	ErrRaceNotReady = errors.New("race not ready")
)

// IntakeError rejects an upload synchronously, before any state is
// created.
type IntakeError struct {
	Reason string
}

func (e *IntakeError) Error() string {
	return fmt.Sprintf("invalid upload: %s", e.Reason)
}

// StorageError wraps blob or metadata store failures surfacing to the
// caller.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

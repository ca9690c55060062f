package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while loading or evolving a
// board.
//
// Runtime errors include:
//   - Size mismatch: snapshot cell count does not match the grid
//   - ID mismatch: the id index points at a cell holding another id
//   - Unknown move: a move with an unrecognized type tag
//   - Bad snapshot: a snapshot that cannot be decoded
//
// Only SIZE_MISMATCH and BAD_SNAPSHOT are returned to callers as failures; the
// others are logged and processing continues.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeSizeMismatch indicates a snapshot whose cell count is not size².
	ErrCodeSizeMismatch RuntimeErrorCode = "SIZE_MISMATCH"

	// ErrCodeIDMismatch indicates the id index disagrees with the grid.
	ErrCodeIDMismatch RuntimeErrorCode = "ID_MISMATCH"

	// ErrCodeUnknownMove indicates a move with an unrecognized type.
	ErrCodeUnknownMove RuntimeErrorCode = "UNKNOWN_MOVE"

	// ErrCodeBadSnapshot indicates a snapshot that cannot be decoded.
	ErrCodeBadSnapshot RuntimeErrorCode = "BAD_SNAPSHOT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func isCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsSizeMismatch returns true if the error is a snapshot size mismatch.
// Uses errors.As to handle wrapped errors.
func IsSizeMismatch(err error) bool { return isCode(err, ErrCodeSizeMismatch) }

// IsIDMismatch returns true if the error is an id index mismatch.
func IsIDMismatch(err error) bool { return isCode(err, ErrCodeIDMismatch) }

// IsUnknownMove returns true if the error is an unrecognized move type.
func IsUnknownMove(err error) bool { return isCode(err, ErrCodeUnknownMove) }

// IsBadSnapshot returns true if the error is an undecodable snapshot.
func IsBadSnapshot(err error) bool { return isCode(err, ErrCodeBadSnapshot) }

// NewSizeMismatchError creates a RuntimeError for a snapshot of the wrong size.
func NewSizeMismatchError(cells, size int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeSizeMismatch,
		Message: fmt.Sprintf("tried to load %d-cell board into %d-cell board", cells, size*size),
		Details: map[string]string{
			"cells": fmt.Sprintf("%d", cells),
			"size":  fmt.Sprintf("%d", size),
		},
	}
}

// NewIDMismatchError creates a RuntimeError for an id index pointing at a cell
// that holds a different id.
func NewIDMismatchError(x, y int, typeName, held, expected string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeIDMismatch,
		Message: fmt.Sprintf("cell (%d,%d) type %s has id %q, expected %q", x, y, typeName, held, expected),
		Details: map[string]string{
			"held":     held,
			"expected": expected,
		},
	}
}

// NewUnknownMoveError creates a RuntimeError for an unrecognized move type.
func NewUnknownMoveError(moveType string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownMove,
		Message: fmt.Sprintf("unknown move type %q", moveType),
		Details: map[string]string{"type": moveType},
	}
}

func badSnapshot(format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeBadSnapshot,
		Message: fmt.Sprintf(format, args...),
	}
}

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired means an interactive sign-in is needed before the
	// store can be used. Callers may retry with credentials.
	ErrAuthRequired = errors.New("remote store authentication required")

	// ErrNotFound means the addressed entry does not exist.
	ErrNotFound = errors.New("remote entry not found")

	// ErrAlreadyExists means a folder with the same name and parent exists.
	ErrAlreadyExists = errors.New("remote entry already exists")

	// ErrInvalidQuery means the query is not of the form name = 'literal'.
	ErrInvalidQuery = errors.New("invalid remote query")
)

// StoreError is the uniform transport, quota or permission failure.
type StoreError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *StoreError) Error() string {
	return fmt.Sprintf("remote store %s: %v", e.Op, e.Err)
}

// Unwrap exposes the cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *StoreError for op. It returns nil for nil, passes
// through ErrAuthRequired and existing *StoreError values unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAuthRequired) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

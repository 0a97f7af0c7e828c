// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrNoManifest means the remote backup is missing or unreadable.
	// A forced full export is the way out.
	ErrNoManifest = errors.New("no remote backup manifest")

	// ErrCorruptManifest means the locally stored manifest cannot be parsed.
	// EnsureInitialized re-seeds it.
	ErrCorruptManifest = errors.New("local manifest is corrupt")

	// ErrNotInitialized means no local manifest has been stored yet.
	ErrNotInitialized = errors.New("local manifest not initialized")

	// ErrUnknownTable is matched by every *UnknownTableError.
	ErrUnknownTable = errors.New("unknown table")

	// ErrBusy is returned when an export or import is already running.
	ErrBusy = errors.New("backup operation already in progress")
)

// UnknownTableError reports a payload or file naming a table this build
// does not know.
type UnknownTableError struct {
	Name string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table %q", e.Name)
}

// Is lets errors.Is match ErrUnknownTable.
func (e *UnknownTableError) Is(target error) bool {
	return target == ErrUnknownTable
}

// unreadableRemoteManifest wraps a parse or download failure of the remote
// manifest.
func unreadableRemoteManifest(cause error) error {
	return fmt.Errorf("%w: remote backup is unreadable, use a forced full backup: %v", ErrNoManifest, cause)
}

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package database

import (
	"errors"
	"io"

	"github.com/tomtom215/tablesync/internal/logging"
)

var (
	// ErrUnknownTable is returned for table names outside the schema.
	ErrUnknownTable = errors.New("unknown table")

	// ErrDuplicateSample is returned when a batch contains the same id twice.
	ErrDuplicateSample = errors.New("duplicate sample id")
)

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource on an error path where the close error is
// not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

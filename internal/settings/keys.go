// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package settings

import "time"

// Key names a setting and fixes the type of its value.
type Key[T any] struct {
	name string
}

// Name returns the storage key.
func (k Key[T]) Name() string {
	return k.name
}

// The complete settings schema.
var (
	// DatabaseManifest is the local manifest in its wire format.
	DatabaseManifest = Key[string]{name: "database_config"}

	LastExportAt   = Key[time.Time]{name: "last_export_at"}
	LastExportMode = Key[string]{name: "last_export_mode"}
	LastImportAt   = Key[time.Time]{name: "last_import_at"}
)

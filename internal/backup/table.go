// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package backup

import (
	"strings"

	"github.com/tomtom215/tablesync/internal/database"
)

const (
	// ManifestFileName is the remote name of the manifest.
	ManifestFileName = "config.json"

	// DefaultFolderName is the remote folder holding a backup.
	DefaultFolderName = "db"

	tableFileExt = ".json"
)

// TableKind identifies a table that takes part in backups.
type TableKind int

const (
	// TableSample holds scanned samples.
	TableSample TableKind = iota
)

type tableInfo struct {
	name        string
	sourceTable string
}

// tableRegistry must have one entry per TableKind, in declaration order.
var tableRegistry = map[TableKind]tableInfo{
	TableSample: {name: "sample", sourceTable: database.TableSamples},
}

// AllTables returns every TableKind in declaration order.
func AllTables() []TableKind {
	kinds := make([]TableKind, 0, len(tableRegistry))
	for k := TableKind(0); int(k) < len(tableRegistry); k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Name returns the portable table name used in manifests and payloads.
func (k TableKind) Name() string {
	if info, ok := tableRegistry[k]; ok {
		return info.name
	}
	return "unknown"
}

// String implements fmt.Stringer.
func (k TableKind) String() string {
	return k.Name()
}

// FileName returns the remote file name of the table payload.
func (k TableKind) FileName() string {
	return k.Name() + tableFileExt
}

// SourceTable returns the local database table backing k.
func (k TableKind) SourceTable() string {
	return tableRegistry[k].sourceTable
}

// Valid reports whether k is a registered table.
func (k TableKind) Valid() bool {
	_, ok := tableRegistry[k]
	return ok
}

// ParseTableKind resolves a portable table name.
func ParseTableKind(name string) (TableKind, bool) {
	for k, info := range tableRegistry {
		if info.name == name {
			return k, true
		}
	}
	return 0, false
}

// ParseTableFile resolves a remote file name of the form "<table>.json".
func ParseTableFile(fileName string) (TableKind, bool) {
	name, ok := strings.CutSuffix(fileName, tableFileExt)
	if !ok || fileName == ManifestFileName {
		return 0, false
	}
	return ParseTableKind(name)
}

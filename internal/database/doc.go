// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

// Package database is the local embedded database for Tablesync.
//
// Two engines are supported through database/sql:
//
//   - duckdb (default): github.com/duckdb/duckdb-go/v2
//   - sqlite: modernc.org/sqlite, a pure-Go build without cgo
//
// # Change Notifications
//
// Every committed mutation publishes a ChangeEvent on an in-process Watermill
// gochannel, one topic per table. Subscribe returns a channel that first
// carries a snapshot event describing the table as it is, then one event per
// later mutation. Subscriptions are independent and end when their context
// is cancelled.
//
// # Schema
//
//	samples     (id VARCHAR PRIMARY KEY, qr VARCHAR NOT NULL)
//	schema_info (version INTEGER NOT NULL)
//
// SchemaVersion is the version written by this build. Opening a database
// created by an older build upgrades schema_info in place.
package database

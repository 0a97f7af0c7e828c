// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

// Package settings is a typed key/value store with a closed schema, backed by
// BadgerDB.
//
// Every key is declared once in keys.go together with the Go type of its
// value. Values are JSON-encoded with goccy/go-json, so reading a key with
// the wrong type is a compile error rather than a runtime surprise:
//
//	raw, err := settings.Get(ctx, store, settings.DatabaseManifest)
//	if errors.Is(err, settings.ErrNotFound) { ... }
//
//	err = settings.Set(ctx, store, settings.LastExportAt, time.Now())
//
// The store is opened once at process start and passed to its users.
package settings

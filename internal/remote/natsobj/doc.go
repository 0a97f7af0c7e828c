// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

// Package natsobj implements remote.Store on a NATS JetStream object store.
//
// Each remote entry is one object whose object name is the entry id (a
// UUID). The user-visible name, kind, parent and mime hint are kept in the
// object metadata, so several entries may share a name just like files in a
// cloud drive. Folders are zero-length objects with kind "folder".
//
// EmbeddedServer starts an in-process nats-server with JetStream enabled for
// single-node deployments and tests.
package natsobj

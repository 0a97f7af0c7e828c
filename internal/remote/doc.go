// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

// Package remote defines the remote object store contract used by backups.
//
// A Store exposes a flat namespace of files and folders addressed by opaque
// ids. Files carry a name and a list of parent folder ids; names are not
// unique. Two backends implement Store:
//
//   - remote/localfs: a directory on a local or mounted filesystem
//   - remote/natsobj: a NATS JetStream object store bucket
//
// Guarded wraps any Store with a circuit breaker (sony/gobreaker) and a
// request rate limit (x/time/rate) and records per-call metrics.
//
// # Errors
//
// Authentication problems surface as ErrAuthRequired. Every other failure is
// a *StoreError naming the operation; ErrNotFound and ErrAlreadyExists can be
// matched through it with errors.Is.
//
// # Queries
//
// FindFilesForQuery accepts the single predicate form
//
//	name = 'literal'
//
// with a backslash escaping quotes and backslashes inside the literal. Use
// NameQuery to build one safely.
package remote

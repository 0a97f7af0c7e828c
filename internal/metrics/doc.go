// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

// Package metrics defines the Prometheus collectors for Tablesync.
//
// Collectors are package-level promauto variables registered with the
// default registry and exposed at /metrics by the HTTP server. Components
// call the Record* helpers rather than touching collectors directly so label
// values stay consistent.
//
// Metric families:
//   - tablesync_backup_*: export and import runs, files moved
//   - tablesync_manifest_*: manifest writes by reason
//   - tablesync_observer_*: change observer state and notifications
//   - tablesync_db_*: local database query latency
//   - tablesync_remote_*: remote store calls and circuit breaker state
package metrics

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

// Command tablesync mirrors the tables of an embedded database to a remote
// object store and restores them from it.
//
// # Commands
//
//	tablesync serve                  run the observer, scheduler and HTTP API
//	tablesync export [--full]        back up changed tables (or all of them)
//	tablesync import [--overwrite]   restore every table from the backup
//	tablesync manifest               print the local manifest and bookkeeping
//	tablesync samples add|list|delete
//	tablesync version
//
// # Configuration
//
// Configuration is layered with Koanf v2 (highest priority wins):
//   - Environment variables (DATABASE_PATH, REMOTE_KIND, REMOTE_NATS_URL, ...)
//   - Config file (--config, CONFIG_PATH or tablesync.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// serve stops on SIGINT or SIGTERM: the supervisor cancels every service,
// the HTTP server drains for server.timeout and the stores are closed.
// One-shot commands cancel the running transfer on the same signals.
package main

import "os"

func main() {
	os.Exit(execute())
}

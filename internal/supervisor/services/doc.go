// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

/*
Package services adapts tablesync components to suture.Service.

Each wrapper translates a component lifecycle (Start/Stop, ListenAndServe,
Shutdown) into Serve(ctx) error and implements fmt.Stringer so supervisor
logs name it.

  - HTTPServerService: *http.Server with graceful shutdown
  - ObserverService: backup.Observer wired to manifest updates
  - EmbeddedNATSService: shuts the embedded NATS server down with the tree

backup.Scheduler already implements suture.Service and needs no wrapper.
*/
package services

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

/*
Package backup keeps a local embedded database mirrored to a remote object
store.

The package tracks which tables changed since the last backup and uploads
only what differs. It can also restore every table from the remote copy.

# Components

  - TableKind: closed enumeration of the tables that take part in backups
  - Manifest: schema version plus one last-modified timestamp per table
  - ManifestStore: persists the local manifest through the settings store
  - Observer: turns database change notifications into manifest updates
  - Codec: converts one table to and from its portable JSON payload
  - Orchestrator: runs Export (full or partial) and Import
  - Scheduler: periodic partial exports

# Remote Layout

A backup is a single folder (default "db") holding one "<table>.json" file
per table and the manifest "config.json":

	db/
	├── config.json   {"version":"1","db":{"sample":"02.01.2024 00:00:00"}}
	└── sample.json   {"sample":[{"id":"a","sampleField":"x"}]}

The manifest is always uploaded last so a cancelled export never leaves a
manifest that claims tables are current when they are not.

# Change Tracking

The Observer subscribes to per-table change streams of the local database.
The first event of each subscription reflects current state and is ignored.
Every later event refreshes that table's manifest timestamp. A partial
export compares the remote manifest with the local one and re-uploads only
tables whose timestamps differ (exact string comparison).

During Import the Observer is suspended so the import's own writes never
reach the manifest. It is resumed on every exit path.

# Thread Safety

ManifestStore serializes all read-modify-write cycles behind one mutex.
Orchestrator allows one Export or Import at a time and returns ErrBusy
otherwise. Observer callbacks for one table never run concurrently.

# Example

	store := backup.NewManifestStore(settingsStore, time.Now)
	if _, err := store.EnsureInitialized(ctx, database.SchemaVersion); err != nil {
	    return err
	}

	observer := backup.NewObserver(db)
	orch, err := backup.NewOrchestrator(backup.Config{
	    Remote:    remoteStore,
	    Manifests: store,
	    Observer:  observer,
	    Codecs:    []backup.Codec{backup.NewSampleCodec(db)},
	    Counter:   db,
	})
	if err != nil {
	    return err
	}

	result, err := orch.Export(ctx, backup.ExportOptions{})
*/
package backup

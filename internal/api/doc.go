// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

/*
Package api provides the HTTP control surface of tablesync.

It is a small operator API served by the supervisor's api-layer. There is no
authentication; bind it to a local address.

# Routes

	GET  /health                 liveness
	GET  /metrics                Prometheus exposition
	GET  /api/v1/status          observer state, bookkeeping, row counts
	GET  /api/v1/manifest        local manifest in wire format
	POST /api/v1/backup/export   {"force_full": bool}
	POST /api/v1/backup/import   {"overwrite": bool}

# Response Format

Every JSON response uses the same envelope:

	{
	  "status": "success",
	  "data": {...},
	  "metadata": {"timestamp": "...", "request_id": "..."}
	}

	{
	  "status": "error",
	  "data": null,
	  "error": {"code": "NO_MANIFEST", "message": "..."}
	}

# Error Mapping

	remote.ErrAuthRequired     401 AUTH_REQUIRED
	backup.ErrNoManifest       404 NO_MANIFEST
	backup.ErrBusy             409 BUSY
	backup.ErrUnknownTable     422 UNKNOWN_TABLE
	*remote.StoreError         502 REMOTE_STORE_ERROR
	backup.ErrCorruptManifest  500 CORRUPT_MANIFEST
	anything else              500 INTERNAL_ERROR

# Usage

	handler := api.NewHandler(api.Deps{
	    Backups:   orchestrator,
	    Manifests: manifestStore,
	    Observer:  observer,
	    Counter:   db,
	    Settings:  settingsStore,
	})
	server := &http.Server{Addr: addr, Handler: api.NewRouter(handler)}
*/
package api

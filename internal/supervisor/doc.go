// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

/*
Package supervisor runs the long-lived parts of tablesync under suture v4.

# Overview

	RootSupervisor ("tablesync")
	├── DataSupervisor ("data-layer")
	│   ├── EmbeddedNATSService (remote.kind=nats with nats.embedded)
	│   └── ObserverService
	├── BackupSupervisor ("backup-layer")
	│   └── backup.Scheduler (backup.schedule_enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (server.enabled)

Crashed services are restarted with suture's backoff. Supervisor events are
logged through sutureslog, bridged to zerolog by logging.NewSlogLogger.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewObserverService(observer, manifests))
	tree.AddBackupService(scheduler)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return tree.Serve(ctx)
*/
package supervisor

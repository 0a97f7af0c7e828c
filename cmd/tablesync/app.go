// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tomtom215/tablesync/internal/backup"
	"github.com/tomtom215/tablesync/internal/config"
	"github.com/tomtom215/tablesync/internal/database"
	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/remote"
	"github.com/tomtom215/tablesync/internal/remote/localfs"
	"github.com/tomtom215/tablesync/internal/remote/natsobj"
	"github.com/tomtom215/tablesync/internal/settings"
)

// app holds every long-lived component. Components are created once here
// and passed to their users; nothing is looked up through globals.
type app struct {
	cfg *config.Config

	db           *database.DB
	settings     *settings.Store
	natsServer   *natsobj.EmbeddedServer
	remote       *remote.Guarded
	manifests    *backup.ManifestStore
	observer     *backup.Observer
	orchestrator *backup.Orchestrator

	closers []io.Closer
}

// closerFunc adapts a function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// newApp opens the local stores, connects nothing remote yet and builds the
// backup engine. On error everything already opened is closed.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	var err error
	a.db, err = database.Open(ctx, database.Options{Driver: cfg.Database.Driver, Path: cfg.Database.Path})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.db)

	a.settings, err = settings.Open(settings.Options{Path: cfg.Settings.Path, InMemory: cfg.Settings.InMemory})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.settings)

	store, err := a.openRemote()
	if err != nil {
		return nil, err
	}
	a.remote = remote.NewGuarded(store, remote.GuardOptions{
		Name:              cfg.Remote.Kind,
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
		Burst:             cfg.Remote.Burst,
		MaxFailures:       cfg.Remote.BreakerMaxFailures,
		OpenTimeout:       cfg.Remote.BreakerTimeout,
	})

	a.manifests = backup.NewManifestStore(a.settings, time.Now)
	if _, err := a.manifests.EnsureInitialized(ctx, database.SchemaVersion); err != nil {
		return nil, err
	}

	a.observer = backup.NewObserver(a.db, backup.AllTables()...)

	a.orchestrator, err = backup.NewOrchestrator(backup.Config{
		Remote:     a.remote,
		Manifests:  a.manifests,
		Codecs:     []backup.Codec{backup.NewSampleCodec(a.db)},
		Observer:   a.observer,
		Counter:    a.db,
		Settings:   a.settings,
		FolderName: cfg.Remote.Folder,
		StagingDir: cfg.Backup.StagingDir,
	})
	if err != nil {
		return nil, err
	}

	logging.Info().
		Str("driver", a.db.Driver()).
		Str("remote", cfg.Remote.Kind).
		Str("folder", a.orchestrator.FolderName()).
		Msg("Backup engine ready")
	ready = true
	return a, nil
}

// openRemote builds the configured store. The embedded NATS server, when
// enabled, is started here so the store can dial it.
func (a *app) openRemote() (remote.Store, error) {
	switch a.cfg.Remote.Kind {
	case config.RemoteKindLocalFS:
		return localfs.New(a.cfg.Remote.LocalDir), nil

	case config.RemoteKindNATS:
		nc := a.cfg.Remote.NATS
		url := nc.URL
		if nc.Embedded {
			srv, err := natsobj.StartEmbeddedServer(natsobj.ServerOptions{
				Host:     nc.Host,
				Port:     nc.Port,
				StoreDir: nc.StoreDir,
				User:     nc.User,
				Password: nc.Password,
			})
			if err != nil {
				return nil, err
			}
			a.natsServer = srv
			a.closers = append(a.closers, closerFunc(func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}))
			url = srv.ClientURL()
			logging.Info().Str("url", url).Msg("Embedded NATS server started")
		}
		store := natsobj.New(natsobj.Options{
			URL:      url,
			Bucket:   nc.Bucket,
			User:     nc.User,
			Password: nc.Password,
			Token:    nc.Token,
		})
		// The store must close before the embedded server shuts down.
		a.closers = append(a.closers, store)
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported remote kind %q", a.cfg.Remote.Kind)
	}
}

// Close releases components in reverse order of creation.
func (a *app) Close() {
	if a.observer != nil {
		a.observer.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		logging.Warn().Err(err).Msg("Errors while closing components")
	}
}

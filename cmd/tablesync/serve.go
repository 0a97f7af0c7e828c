// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/tablesync/internal/api"
	"github.com/tomtom215/tablesync/internal/backup"
	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/supervisor"
	"github.com/tomtom215/tablesync/internal/supervisor/services"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Track local changes, run scheduled backups and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				tree, err := buildTree(a)
				if err != nil {
					return err
				}

				logging.Info().Msg("Starting supervisor tree")
				errCh := tree.ServeBackground(ctx)
				err = <-errCh

				if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
					for _, svc := range report {
						logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
					}
				}

				if err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("supervisor stopped: %w", err)
				}
				logging.Info().Msg("Shutdown complete")
				return nil
			})
		},
	}
}

// buildTree registers every long-running service of a.
func buildTree(a *app) (*supervisor.SupervisorTree, error) {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}

	if a.natsServer != nil {
		tree.AddDataService(services.NewEmbeddedNATSService(a.natsServer, 10*time.Second))
	}
	tree.AddDataService(services.NewObserverService(a.observer, a.manifests))

	var scheduler *backup.Scheduler
	if a.cfg.Backup.ScheduleEnabled {
		scheduler, err = backup.NewScheduler(a.orchestrator, a.cfg.Backup.Interval, a.cfg.Backup.ForceFullOnSchedule)
		if err != nil {
			return nil, err
		}
		tree.AddBackupService(scheduler)
	}

	if a.cfg.Server.Enabled {
		deps := api.Deps{
			Backups:   a.orchestrator,
			Manifests: a.manifests,
			Observer:  a.observer,
			Counter:   a.db,
			Settings:  a.settings,
			Version:   version,
		}
		if scheduler != nil {
			deps.Schedule = scheduler
		}
		server := &http.Server{
			Addr:              net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port)),
			Handler:           api.NewRouter(api.NewHandler(deps)),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      a.cfg.Server.Timeout,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
		logging.Info().Str("addr", server.Addr).Msg("HTTP API enabled")
	}

	return tree, nil
}

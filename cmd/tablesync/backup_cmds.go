// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/tablesync/internal/backup"
	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/remote"
	"github.com/tomtom215/tablesync/internal/settings"
)

func newExportCmd(opts *globalOptions) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Back up tables that changed since the last backup",
		Long: "Back up tables whose local change timestamp differs from the remote manifest.\n" +
			"Without a remote backup, or with --full, every table is uploaded.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				ctx = logging.ContextWithNewCorrelationID(ctx)

				result, err := a.orchestrator.Export(ctx, backup.ExportOptions{
					ForceFull: full,
					OnUploaded: func(f remote.FileDescriptor) {
						fmt.Fprintf(out, "uploaded %s (%s)\n", f.Name, f.ID)
					},
				})
				if errors.Is(err, backup.ErrNoManifest) {
					return fmt.Errorf("%w\nrun 'tablesync export --full' to replace the remote backup", err)
				}
				if err != nil {
					return err
				}

				if result.UpToDate() {
					fmt.Fprintln(out, "backup is up to date")
					return nil
				}
				fmt.Fprintf(out, "%s backup complete: %d file(s)\n", result.Mode, len(result.Uploaded))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "upload every table and replace the remote manifest")
	return cmd
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Restore every table from the remote backup",
		Long: "Restore every table from the remote backup. By default the import only runs\n" +
			"when the local database is empty; --overwrite replaces existing rows.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				ctx = logging.ContextWithNewCorrelationID(ctx)

				result, err := a.orchestrator.Import(ctx, backup.ImportOptions{
					Overwrite: overwrite,
					OnImported: func(table string) {
						fmt.Fprintf(out, "imported %s\n", table)
					},
				})
				if err != nil {
					return err
				}
				if result.Skipped {
					fmt.Fprintln(out, "local database is not empty, import skipped (use --overwrite)")
					return nil
				}
				fmt.Fprintf(out, "import complete: %d table(s)\n", len(result.Tables))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace rows already in the local database")
	return cmd
}

func newManifestCmd(opts *globalOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Show the local manifest and backup bookkeeping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if raw {
					s, err := a.manifests.Raw(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, s)
					return nil
				}

				m, err := a.manifests.Load(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "schema version\t%d\n", m.SchemaVersion)
				for _, table := range backup.AllTables() {
					fmt.Fprintf(w, "%s\t%s\n", table.Name(), orDash(m.Tables[table]))
				}
				fmt.Fprintf(w, "last export\t%s\n", timeSetting(ctx, a.settings, settings.LastExportAt))
				fmt.Fprintf(w, "last export mode\t%s\n", stringSetting(ctx, a.settings, settings.LastExportMode))
				fmt.Fprintf(w, "last import\t%s\n", timeSetting(ctx, a.settings, settings.LastImportAt))
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the manifest in its wire format")
	return cmd
}

func timeSetting(ctx context.Context, s *settings.Store, key settings.Key[time.Time]) string {
	v, err := settings.Get(ctx, s, key)
	if err != nil {
		return "-"
	}
	return backup.FormatTimestamp(v)
}

func stringSetting(ctx context.Context, s *settings.Store, key settings.Key[string]) string {
	v, err := settings.Get(ctx, s, key)
	if err != nil {
		return "-"
	}
	return orDash(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tomtom215/tablesync/internal/backup"
	"github.com/tomtom215/tablesync/internal/database"
	"github.com/tomtom215/tablesync/internal/validation"
)

// sampleInput is a validated samples add request.
type sampleInput struct {
	ID string `json:"id" validate:"sampleid"`
	QR string `json:"sampleField" validate:"required,max=4096"`
}

func newSamplesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "samples",
		Short: "Manage rows of the sample table",
	}
	cmd.AddCommand(newSamplesAddCmd(opts), newSamplesListCmd(opts), newSamplesDeleteCmd(opts))
	return cmd
}

func newSamplesAddCmd(opts *globalOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "add <value>",
		Short: "Insert a sample, or replace the one with the same --id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := sampleInput{ID: id, QR: args[0]}
			if in.ID == "" {
				in.ID = uuid.New().String()
			}
			if verr := validation.ValidateStruct(in); verr != nil {
				return verr
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.db.UpsertSample(ctx, database.Sample{ID: in.ID, QR: in.QR}); err != nil {
					return err
				}
				if err := touchSamples(ctx, a); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), in.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "sample id (default: a new UUID)")
	return cmd
}

func newSamplesListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				samples, err := a.db.ListSamples(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tVALUE")
				for _, s := range samples {
					fmt.Fprintf(w, "%s\t%s\n", s.ID, s.QR)
				}
				return w.Flush()
			})
		},
	}
}

func newSamplesDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				removed, err := a.db.DeleteSample(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("sample %q not found", args[0])
				}
				return touchSamples(ctx, a)
			})
		},
	}
}

// touchSamples stamps the sample table in the local manifest. One-shot
// commands exit before an observer could deliver the change, so they record
// it themselves.
func touchSamples(ctx context.Context, a *app) error {
	return a.manifests.Touch(ctx, backup.TableSample)
}

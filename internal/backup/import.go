// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package backup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/metrics"
	"github.com/tomtom215/tablesync/internal/remote"
)

// ImportOptions controls one Import call.
type ImportOptions struct {
	// Overwrite allows importing into a database that already has rows.
	Overwrite bool

	Credentials remote.Credentials

	// OnImported is called with each table name once it is loaded.
	OnImported func(table string)
}

// ImportResult describes a finished Import.
type ImportResult struct {
	Tables  []string
	Skipped bool
}

// Import replaces the local tables with the remote backup.
//
// The change observer is suspended for the whole transfer and resumed on
// every exit path. The first table that fails aborts the rest. After all
// tables load, the local manifest adopts the remote timestamps so the next
// export sees nothing to upload.
func (o *Orchestrator) Import(ctx context.Context, opts ImportOptions) (result ImportResult, err error) {
	if err := o.acquire(); err != nil {
		return ImportResult{}, err
	}
	defer o.release()

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)
	start := time.Now()
	defer func() {
		mode := "restore"
		if result.Skipped {
			mode = "skipped"
		}
		metrics.RecordBackupRun("import", mode, time.Since(start), err)
	}()

	if !opts.Overwrite && o.counter != nil {
		rows, err := o.counter.CountAll(ctx)
		if err != nil {
			return ImportResult{}, fmt.Errorf("count local rows: %w", err)
		}
		if rows > 0 {
			log.Info().Int("rows", rows).Msg("Local database not empty, skipping import")
			return ImportResult{Skipped: true}, nil
		}
	}

	if err := o.remote.Connect(ctx, opts.Credentials); err != nil {
		return ImportResult{}, fmt.Errorf("connect to remote store: %w", err)
	}

	folder, ok, err := o.findFolder(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	if !ok {
		return ImportResult{}, fmt.Errorf("%w: backup folder %q not found", ErrNoManifest, o.folderName)
	}

	all, err := o.remote.ListFiles(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("list remote files: %w", err)
	}
	files := dedupeByName(inFolder(onlyFiles(all), folder.ID))

	var manifestFile remote.FileDescriptor
	tables := make([]remote.FileDescriptor, 0, len(files))
	for _, f := range files {
		if f.Name == ManifestFileName {
			manifestFile = f
			continue
		}
		tables = append(tables, f)
	}
	if manifestFile.ID == "" {
		return ImportResult{}, fmt.Errorf("%w: %s missing from backup folder", ErrNoManifest, ManifestFileName)
	}

	if o.observer != nil {
		resume := o.observer.Suspend()
		defer resume()
	}

	log.Info().Int("files", len(tables)).Msg("Starting import")

	manifestRaw, err := o.remote.DownloadFile(ctx, manifestFile.ID)
	if err != nil {
		return ImportResult{}, fmt.Errorf("download remote manifest: %w", err)
	}
	metrics.RecordFileTransfer("download", "manifest", len(manifestRaw))

	for _, f := range tables {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		table, ok := ParseTableFile(f.Name)
		if !ok {
			return result, &UnknownTableError{Name: strings.TrimSuffix(f.Name, tableFileExt)}
		}

		payload, err := o.remote.DownloadFile(ctx, f.ID)
		if err != nil {
			return result, fmt.Errorf("download %s: %w", f.Name, err)
		}
		metrics.RecordFileTransfer("download", "table", len(payload))

		if err := o.codecs[table].Import(ctx, payload); err != nil {
			return result, fmt.Errorf("import %s: %w", table, err)
		}
		result.Tables = append(result.Tables, table.Name())
		if opts.OnImported != nil {
			opts.OnImported(table.Name())
		}
		log.Debug().Str("table", table.Name()).Msg("Imported table")
	}

	if _, err := o.manifests.Adopt(ctx, manifestRaw); err != nil {
		log.Warn().Err(err).Msg("Imported tables but could not adopt remote manifest")
	}
	o.recordImport(ctx)

	log.Info().
		Strs("tables", result.Tables).
		Dur("duration", time.Since(start)).
		Msg("Import completed")
	return result, nil
}

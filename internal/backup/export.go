// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/metrics"
	"github.com/tomtom215/tablesync/internal/remote"
)

// ExportMode tells which kind of export ran.
type ExportMode string

// Export modes.
const (
	ExportFull    ExportMode = "full"
	ExportPartial ExportMode = "partial"
)

// ExportOptions controls one Export call.
type ExportOptions struct {
	// ForceFull re-uploads every table even when a remote manifest exists.
	ForceFull bool

	Credentials remote.Credentials

	// OnUploaded is called once per uploaded file, as uploads complete.
	// Calls are serialized.
	OnUploaded func(remote.FileDescriptor)
}

// ExportResult describes a finished Export.
type ExportResult struct {
	Mode     ExportMode
	Tables   []TableKind
	Uploaded []remote.FileDescriptor
}

// UpToDate reports whether a partial export found nothing to upload.
func (r ExportResult) UpToDate() bool {
	return r.Mode == ExportPartial && len(r.Uploaded) == 0
}

// Export mirrors the local tables to the remote store.
//
// Without a remote manifest in the backup folder (or with ForceFull) every
// table is uploaded. Otherwise only tables whose timestamps differ from the
// remote manifest are uploaded. The manifest itself is always uploaded last.
func (o *Orchestrator) Export(ctx context.Context, opts ExportOptions) (result ExportResult, err error) {
	if err := o.acquire(); err != nil {
		return ExportResult{}, err
	}
	defer o.release()

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)
	start := time.Now()
	defer func() {
		metrics.RecordBackupRun("export", string(result.Mode), time.Since(start), err)
	}()

	if err := o.remote.Connect(ctx, opts.Credentials); err != nil {
		return ExportResult{}, fmt.Errorf("connect to remote store: %w", err)
	}

	folder, manifestFile, found, err := o.findManifest(ctx)
	if err != nil {
		return ExportResult{}, err
	}

	if opts.ForceFull || !found {
		log.Info().Bool("forced", opts.ForceFull).Str("folder", o.folderName).Msg("Starting full backup")
		result, err = o.exportFull(ctx, opts)
	} else {
		log.Info().Str("manifest_id", manifestFile.ID).Str("folder", o.folderName).Msg("Starting partial backup")
		result, err = o.exportPartial(ctx, folder.ID, manifestFile, opts)
	}
	if err != nil {
		log.Error().Err(err).Str("mode", string(result.Mode)).Msg("Backup failed")
		return result, err
	}

	o.recordExport(ctx, result.Mode)
	log.Info().
		Str("mode", string(result.Mode)).
		Int("uploaded", len(result.Uploaded)).
		Dur("duration", time.Since(start)).
		Msg("Backup completed")
	return result, nil
}

// findManifest looks up the remote manifest inside the backup folder.
// found is false when the folder or the manifest in it is missing.
func (o *Orchestrator) findManifest(ctx context.Context) (folder, manifestFile remote.FileDescriptor, found bool, err error) {
	folder, ok, err := o.findFolder(ctx)
	if err != nil || !ok {
		return folder, remote.FileDescriptor{}, false, err
	}

	files, err := o.remote.FindFilesForQuery(ctx, remote.NameQuery(ManifestFileName))
	if err != nil {
		return folder, remote.FileDescriptor{}, false, fmt.Errorf("find remote manifest: %w", err)
	}
	manifests := dedupeByName(inFolder(onlyFiles(files), folder.ID))
	if len(manifests) == 0 {
		return folder, remote.FileDescriptor{}, false, nil
	}
	return folder, manifests[0], true, nil
}

func (o *Orchestrator) exportFull(ctx context.Context, opts ExportOptions) (ExportResult, error) {
	result := ExportResult{Mode: ExportFull}

	folder, err := o.resolveFolder(ctx)
	if err != nil {
		return result, err
	}

	local, err := o.manifests.Load(ctx)
	if err != nil {
		return result, fmt.Errorf("load local manifest: %w", err)
	}

	result.Tables = AllTables()
	uploaded, err := o.upload(ctx, folder.ID, local, result.Tables, opts.OnUploaded)
	result.Uploaded = uploaded
	return result, err
}

func (o *Orchestrator) exportPartial(ctx context.Context, folderID string, manifestFile remote.FileDescriptor, opts ExportOptions) (ExportResult, error) {
	result := ExportResult{Mode: ExportPartial}

	raw, err := o.remote.DownloadFile(ctx, manifestFile.ID)
	if errors.Is(err, remote.ErrNotFound) {
		return result, unreadableRemoteManifest(err)
	}
	if err != nil {
		return result, fmt.Errorf("download remote manifest: %w", err)
	}
	metrics.RecordFileTransfer("download", "manifest", len(raw))

	remoteManifest, err := ParseManifest(raw)
	if err != nil {
		return result, unreadableRemoteManifest(err)
	}

	local, err := o.manifests.Load(ctx)
	if err != nil {
		return result, fmt.Errorf("load local manifest: %w", err)
	}

	changed := Diff(remoteManifest, local)
	if len(changed) == 0 {
		logging.Ctx(ctx).Info().Msg("Remote backup already up to date")
		return result, nil
	}
	result.Tables = changed

	uploaded, err := o.upload(ctx, folderID, local, changed, opts.OnUploaded)
	result.Uploaded = uploaded
	return result, err
}

// upload stages and transfers tables concurrently, then the manifest.
// The manifest snapshot is taken before the tables are read so a change
// racing the export is caught by the next one.
func (o *Orchestrator) upload(ctx context.Context, folderID string, manifest Manifest, tables []TableKind, onUploaded func(remote.FileDescriptor)) ([]remote.FileDescriptor, error) {
	dir, cleanup, err := o.newStagingDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var (
		mu       sync.Mutex
		uploaded = make([]remote.FileDescriptor, 0, len(tables)+1)
	)
	emit := func(desc remote.FileDescriptor) {
		mu.Lock()
		defer mu.Unlock()
		uploaded = append(uploaded, desc)
		if onUploaded != nil {
			onUploaded(desc)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, table := range tables {
		codec := o.codecs[table]
		g.Go(func() error {
			file, err := codec.Export(gctx, dir)
			if err != nil {
				return fmt.Errorf("export %s: %w", table, err)
			}
			desc, err := o.put(gctx, file.Path, folderID)
			if err != nil {
				return err
			}
			emit(desc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return uploaded, err
	}

	manifestPath := filepath.Join(dir, ManifestFileName)
	data, err := manifest.Encode()
	if err != nil {
		return uploaded, fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0o600); err != nil {
		return uploaded, fmt.Errorf("stage manifest: %w", err)
	}
	desc, err := o.put(ctx, manifestPath, folderID)
	if err != nil {
		return uploaded, err
	}
	emit(desc)
	return uploaded, nil
}

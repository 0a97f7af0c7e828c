// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

/*
orchestrator.go - Backup Orchestrator

This file contains the Orchestrator struct, its construction and the remote
helpers shared by Export and Import.

Orchestrator Responsibilities:
  - Resolving (or creating) the remote backup folder
  - Uploading staged files, updating same-named entries in place
  - Deduplicating remote entries that share a name
  - Recording bookkeeping settings after each run

Thread Safety:
One Export or Import runs at a time per Orchestrator; a second call
returns ErrBusy. Manifest reads and writes go through ManifestStore, which
serializes them against the change observer.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/metrics"
	"github.com/tomtom215/tablesync/internal/remote"
	"github.com/tomtom215/tablesync/internal/settings"
)

// RowCounter reports the total number of rows across backed-up tables.
type RowCounter interface {
	CountAll(ctx context.Context) (int, error)
}

// Config wires an Orchestrator to its collaborators.
type Config struct {
	Remote    remote.Store
	Manifests *ManifestStore
	Codecs    []Codec

	// Observer is suspended during Import. Optional.
	Observer *Observer

	// Counter gates Import into a non-empty database. Optional.
	Counter RowCounter

	// Settings receives last_export_at, last_export_mode and
	// last_import_at. Optional.
	Settings *settings.Store

	// FolderName defaults to DefaultFolderName.
	FolderName string

	// StagingDir holds per-call temporary directories. Defaults to
	// os.TempDir().
	StagingDir string

	// UploadConcurrency bounds parallel table uploads. Defaults to 4.
	UploadConcurrency int

	Now func() time.Time
}

// Orchestrator runs exports and imports against one remote store.
type Orchestrator struct {
	remote      remote.Store
	manifests   *ManifestStore
	observer    *Observer
	counter     RowCounter
	settings    *settings.Store
	codecs      map[TableKind]Codec
	folderName  string
	stagingDir  string
	concurrency int
	now         func() time.Time

	running atomic.Bool
}

// NewOrchestrator validates cfg and builds an Orchestrator. Every TableKind
// must have exactly one codec.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Remote == nil {
		return nil, errors.New("backup: remote store is required")
	}
	if cfg.Manifests == nil {
		return nil, errors.New("backup: manifest store is required")
	}

	codecs := make(map[TableKind]Codec, len(cfg.Codecs))
	for _, c := range cfg.Codecs {
		if _, dup := codecs[c.Table()]; dup {
			return nil, fmt.Errorf("backup: duplicate codec for table %s", c.Table())
		}
		codecs[c.Table()] = c
	}
	for _, k := range AllTables() {
		if _, ok := codecs[k]; !ok {
			return nil, fmt.Errorf("backup: no codec for table %s", k)
		}
	}

	o := &Orchestrator{
		remote:      cfg.Remote,
		manifests:   cfg.Manifests,
		observer:    cfg.Observer,
		counter:     cfg.Counter,
		settings:    cfg.Settings,
		codecs:      codecs,
		folderName:  cfg.FolderName,
		stagingDir:  cfg.StagingDir,
		concurrency: cfg.UploadConcurrency,
		now:         cfg.Now,
	}
	if o.folderName == "" {
		o.folderName = DefaultFolderName
	}
	if o.stagingDir == "" {
		o.stagingDir = os.TempDir()
	}
	if o.concurrency <= 0 {
		o.concurrency = 4
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Busy reports whether an export or import is running.
func (o *Orchestrator) Busy() bool {
	return o.running.Load()
}

// FolderName returns the remote folder this orchestrator writes to.
func (o *Orchestrator) FolderName() string {
	return o.folderName
}

func (o *Orchestrator) acquire() error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (o *Orchestrator) release() {
	o.running.Store(false)
}

// newStagingDir creates a private directory for one call.
func (o *Orchestrator) newStagingDir() (string, func(), error) {
	if err := os.MkdirAll(o.stagingDir, 0o750); err != nil {
		return "", nil, fmt.Errorf("create staging directory: %w", err)
	}
	dir, err := os.MkdirTemp(o.stagingDir, "tablesync-")
	if err != nil {
		return "", nil, fmt.Errorf("create staging directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			logging.Warn().Err(err).Str("dir", dir).Msg("Failed to remove staging directory")
		}
	}
	return dir, cleanup, nil
}

// findFolder returns the backup folder, or ok=false when there is none.
func (o *Orchestrator) findFolder(ctx context.Context) (remote.FileDescriptor, bool, error) {
	found, err := o.remote.FindFilesForQuery(ctx, remote.NameQuery(o.folderName))
	if err != nil {
		return remote.FileDescriptor{}, false, fmt.Errorf("find backup folder: %w", err)
	}
	folders := dedupeByName(onlyFolders(found))
	if len(folders) == 0 {
		return remote.FileDescriptor{}, false, nil
	}
	return folders[0], true, nil
}

// resolveFolder finds the backup folder or creates it. A create that fails
// because the folder appeared meanwhile is treated as success.
func (o *Orchestrator) resolveFolder(ctx context.Context) (remote.FileDescriptor, error) {
	folder, ok, err := o.findFolder(ctx)
	if err != nil || ok {
		return folder, err
	}

	created, err := o.remote.CreateFolder(ctx, o.folderName, "")
	if err == nil {
		logging.Ctx(ctx).Info().Str("folder", o.folderName).Str("id", created.ID).Msg("Created remote backup folder")
		return created, nil
	}
	if !errors.Is(err, remote.ErrAlreadyExists) {
		return remote.FileDescriptor{}, fmt.Errorf("create backup folder: %w", err)
	}

	folder, ok, err = o.findFolder(ctx)
	if err != nil {
		return remote.FileDescriptor{}, err
	}
	if !ok {
		return remote.FileDescriptor{}, fmt.Errorf("backup folder %q reported as existing but not found", o.folderName)
	}
	return folder, nil
}

// put uploads the file at path into folderID, updating an existing entry
// of the same name in place.
func (o *Orchestrator) put(ctx context.Context, path, folderID string) (remote.FileDescriptor, error) {
	name := filepath.Base(path)
	found, err := o.remote.FindFilesForQuery(ctx, remote.NameQuery(name))
	if err != nil {
		return remote.FileDescriptor{}, fmt.Errorf("look up %s: %w", name, err)
	}
	existing := dedupeByName(inFolder(onlyFiles(found), folderID))

	size := fileSize(path)
	if len(existing) > 0 {
		desc, err := o.remote.UpdateFile(ctx, existing[0].ID, path)
		if err != nil {
			return remote.FileDescriptor{}, fmt.Errorf("update %s: %w", name, err)
		}
		metrics.RecordFileTransfer("upload", "updated", size)
		logging.Ctx(ctx).Debug().Str("file", name).Str("id", desc.ID).Msg("Updated remote file")
		return desc, nil
	}

	desc, err := o.remote.UploadFile(ctx, path, remote.MimeJSON, folderID)
	if err != nil {
		return remote.FileDescriptor{}, fmt.Errorf("upload %s: %w", name, err)
	}
	metrics.RecordFileTransfer("upload", "created", size)
	logging.Ctx(ctx).Debug().Str("file", name).Str("id", desc.ID).Msg("Uploaded remote file")
	return desc, nil
}

func (o *Orchestrator) recordExport(ctx context.Context, mode ExportMode) {
	if o.settings == nil {
		return
	}
	if err := settings.Set(ctx, o.settings, settings.LastExportAt, o.now().UTC()); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record export time")
	}
	if err := settings.Set(ctx, o.settings, settings.LastExportMode, string(mode)); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record export mode")
	}
}

func (o *Orchestrator) recordImport(ctx context.Context) {
	if o.settings == nil {
		return
	}
	if err := settings.Set(ctx, o.settings, settings.LastImportAt, o.now().UTC()); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record import time")
	}
}

func fileSize(path string) int {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return int(info.Size())
}

func onlyFolders(files []remote.FileDescriptor) []remote.FileDescriptor {
	out := make([]remote.FileDescriptor, 0, len(files))
	for _, f := range files {
		if f.IsFolder() {
			out = append(out, f)
		}
	}
	return out
}

func onlyFiles(files []remote.FileDescriptor) []remote.FileDescriptor {
	out := make([]remote.FileDescriptor, 0, len(files))
	for _, f := range files {
		if !f.IsFolder() {
			out = append(out, f)
		}
	}
	return out
}

func inFolder(files []remote.FileDescriptor, folderID string) []remote.FileDescriptor {
	if folderID == "" {
		return files
	}
	out := make([]remote.FileDescriptor, 0, len(files))
	for _, f := range files {
		if f.InFolder(folderID) {
			out = append(out, f)
		}
	}
	return out
}

// dedupeByName keeps one entry per name, the one with the smallest id, and
// returns them sorted by name.
func dedupeByName(files []remote.FileDescriptor) []remote.FileDescriptor {
	sorted := make([]remote.FileDescriptor, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]remote.FileDescriptor, 0, len(sorted))
	for _, f := range sorted {
		if len(out) > 0 && out[len(out)-1].Name == f.Name {
			continue
		}
		out = append(out, f)
	}
	return out
}

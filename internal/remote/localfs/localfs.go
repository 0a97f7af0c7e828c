// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

// Package localfs implements remote.Store on a directory.
//
// Layout under the root:
//
//	objects/<id>      file content
//	meta/<id>.json    descriptor (name, kind, parents, mime, size, modified)
//
// Writes go to a temporary file first and are renamed into place, so a
// reader never sees a half-written object. The root may live on a network
// mount, which makes this backend useful for NAS targets.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/tablesync/internal/remote"
)

const (
	objectsDir = "objects"
	metaDir    = "meta"
)

// entry is the on-disk descriptor.
type entry struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Kind      remote.Kind `json:"kind"`
	ParentIDs []string    `json:"parent_ids,omitempty"`
	Mime      string      `json:"mime,omitempty"`
	Size      int64       `json:"size"`
	Modified  time.Time   `json:"modified"`
}

func (e entry) descriptor() remote.FileDescriptor {
	return remote.FileDescriptor{ID: e.ID, Name: e.Name, Kind: e.Kind, ParentIDs: e.ParentIDs}
}

// Store is a directory-backed remote.Store.
type Store struct {
	root string

	// mu serializes metadata mutations so folder creation is check-and-set.
	mu sync.Mutex
}

var _ remote.Store = (*Store)(nil)

// New returns a store rooted at root. Nothing is touched until Connect.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the root directory.
func (s *Store) Root() string {
	return s.root
}

// Connect creates the directory layout. Credentials are not used.
func (s *Store) Connect(ctx context.Context, _ remote.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, dir := range []string{objectsDir, metaDir} {
		if err := os.MkdirAll(filepath.Join(s.root, dir), 0o750); err != nil {
			return remote.Wrap("connect", err)
		}
	}
	return nil
}

// ListFiles implements remote.Store. Entries are ordered by id.
func (s *Store) ListFiles(ctx context.Context) ([]remote.FileDescriptor, error) {
	entries, err := s.readAll(ctx)
	if err != nil {
		return nil, remote.Wrap("list", err)
	}
	files := make([]remote.FileDescriptor, len(entries))
	for i, e := range entries {
		files[i] = e.descriptor()
	}
	return files, nil
}

// FindFilesForQuery implements remote.Store.
func (s *Store) FindFilesForQuery(ctx context.Context, query string) ([]remote.FileDescriptor, error) {
	q, err := remote.ParseQuery(query)
	if err != nil {
		return nil, remote.Wrap("query", err)
	}
	files, err := s.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	return remote.Filter(files, q), nil
}

// CreateFolder implements remote.Store.
func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (remote.FileDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAll(ctx)
	if err != nil {
		return remote.FileDescriptor{}, remote.Wrap("create_folder", err)
	}
	for _, e := range entries {
		if e.Kind == remote.KindFolder && e.Name == name && sameParent(e.ParentIDs, parentID) {
			return remote.FileDescriptor{}, remote.Wrap("create_folder",
				fmt.Errorf("%w: folder %q", remote.ErrAlreadyExists, name))
		}
	}

	e := entry{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      remote.KindFolder,
		ParentIDs: parents(parentID),
		Mime:      remote.MimeFolder,
		Modified:  time.Now().UTC(),
	}
	if err := s.writeMeta(e); err != nil {
		return remote.FileDescriptor{}, remote.Wrap("create_folder", err)
	}
	return e.descriptor(), nil
}

// UploadFile implements remote.Store.
func (s *Store) UploadFile(ctx context.Context, localPath, mimeHint, parentID string) (remote.FileDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return remote.FileDescriptor{}, remote.Wrap("upload", err)
	}
	data, err := os.ReadFile(localPath) //nolint:gosec // staging path chosen by the caller
	if err != nil {
		return remote.FileDescriptor{}, remote.Wrap("upload", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{
		ID:        uuid.NewString(),
		Name:      filepath.Base(localPath),
		Kind:      remote.KindFile,
		ParentIDs: parents(parentID),
		Mime:      mimeHint,
		Size:      int64(len(data)),
		Modified:  time.Now().UTC(),
	}
	// Object before metadata: an entry is only listed once its content exists.
	if err := writeAtomic(s.objectPath(e.ID), data); err != nil {
		return remote.FileDescriptor{}, remote.Wrap("upload", err)
	}
	if err := s.writeMeta(e); err != nil {
		_ = os.Remove(s.objectPath(e.ID))
		return remote.FileDescriptor{}, remote.Wrap("upload", err)
	}
	return e.descriptor(), nil
}

// UpdateFile implements remote.Store.
func (s *Store) UpdateFile(ctx context.Context, id, localPath string) (remote.FileDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return remote.FileDescriptor{}, remote.Wrap("update", err)
	}
	data, err := os.ReadFile(localPath) //nolint:gosec // staging path chosen by the caller
	if err != nil {
		return remote.FileDescriptor{}, remote.Wrap("update", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.readMeta(id)
	if err != nil {
		return remote.FileDescriptor{}, remote.Wrap("update", err)
	}
	if e.Kind == remote.KindFolder {
		return remote.FileDescriptor{}, remote.Wrap("update", fmt.Errorf("%s is a folder", id))
	}
	if err := writeAtomic(s.objectPath(id), data); err != nil {
		return remote.FileDescriptor{}, remote.Wrap("update", err)
	}
	e.Size = int64(len(data))
	e.Modified = time.Now().UTC()
	if err := s.writeMeta(e); err != nil {
		return remote.FileDescriptor{}, remote.Wrap("update", err)
	}
	return e.descriptor(), nil
}

// DownloadFile implements remote.Store.
func (s *Store) DownloadFile(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, remote.Wrap("download", err)
	}
	if !validID(id) {
		return nil, remote.Wrap("download", fmt.Errorf("%w: %s", remote.ErrNotFound, id))
	}
	data, err := os.ReadFile(s.objectPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, remote.Wrap("download", fmt.Errorf("%w: %s", remote.ErrNotFound, id))
	}
	if err != nil {
		return nil, remote.Wrap("download", err)
	}
	return data, nil
}

// DeleteFile implements remote.Store.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return remote.Wrap("delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readMeta(id); err != nil {
		return remote.Wrap("delete", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil {
		return remote.Wrap("delete", err)
	}
	if err := os.Remove(s.objectPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return remote.Wrap("delete", err)
	}
	return nil
}

func (s *Store) objectPath(id string) string {
	return filepath.Join(s.root, objectsDir, id)
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.root, metaDir, id+".json")
}

func (s *Store) readMeta(id string) (entry, error) {
	if !validID(id) {
		return entry{}, fmt.Errorf("%w: %s", remote.ErrNotFound, id)
	}
	data, err := os.ReadFile(s.metaPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return entry{}, fmt.Errorf("%w: %s", remote.ErrNotFound, id)
	}
	if err != nil {
		return entry{}, err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return entry{}, fmt.Errorf("corrupt metadata for %s: %w", id, err)
	}
	return e, nil
}

func (s *Store) writeMeta(e entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return writeAtomic(s.metaPath(e.ID), data)
}

func (s *Store) readAll(ctx context.Context) ([]entry, error) {
	dirEntries, err := os.ReadDir(filepath.Join(s.root, metaDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		e, err := s.readMeta(strings.TrimSuffix(name, ".json"))
		if errors.Is(err, remote.ErrNotFound) {
			// Deleted between ReadDir and ReadFile.
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func parents(parentID string) []string {
	if parentID == "" {
		return nil
	}
	return []string{parentID}
}

func sameParent(ids []string, parentID string) bool {
	if parentID == "" {
		return len(ids) == 0
	}
	for _, id := range ids {
		if id == parentID {
			return true
		}
	}
	return false
}

// validID rejects ids that could escape the store directories.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

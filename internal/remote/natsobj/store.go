// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package natsobj

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/remote"
)

// Object metadata keys.
const (
	metaName   = "tablesync-name"
	metaKind   = "tablesync-kind"
	metaParent = "tablesync-parent"
	metaMime   = "tablesync-mime"
)

// Options configures Store.
type Options struct {
	URL      string
	Bucket   string
	User     string
	Password string
	Token    string
}

// Store is a JetStream object store backed remote.Store.
type Store struct {
	opts Options

	mu  sync.Mutex
	nc  *nats.Conn
	obj jetstream.ObjectStore

	// folderMu makes folder creation check-and-set within this process.
	folderMu sync.Mutex
}

var _ remote.Store = (*Store)(nil)

// New returns an unconnected store.
func New(opts Options) *Store {
	return &Store{opts: opts}
}

// Connect dials NATS and opens (creating if needed) the bucket. Non-empty
// credentials override the configured ones. Calling Connect on a connected
// store is a no-op.
func (s *Store) Connect(ctx context.Context, creds remote.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.obj != nil && s.nc != nil && s.nc.IsConnected() {
		return nil
	}

	natsOpts := []nats.Option{
		nats.Name("tablesync"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	}
	user, password, token := s.opts.User, s.opts.Password, s.opts.Token
	if creds.User != "" {
		user, password = creds.User, creds.Password
	}
	if creds.Token != "" {
		token = creds.Token
	}
	if user != "" {
		natsOpts = append(natsOpts, nats.UserInfo(user, password))
	}
	if token != "" {
		natsOpts = append(natsOpts, nats.Token(token))
	}

	nc, err := nats.Connect(s.opts.URL, natsOpts...)
	if err != nil {
		if isAuthError(err) {
			return fmt.Errorf("%w: %v", remote.ErrAuthRequired, err)
		}
		return remote.Wrap("connect", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return remote.Wrap("connect", fmt.Errorf("create JetStream context: %w", err))
	}

	obj, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      s.opts.Bucket,
		Description: "Tablesync table backups",
	})
	if err != nil {
		nc.Close()
		return remote.Wrap("connect", fmt.Errorf("open bucket %s: %w", s.opts.Bucket, err))
	}

	s.nc, s.obj = nc, obj
	logging.Info().Str("url", s.opts.URL).Str("bucket", s.opts.Bucket).Msg("Connected to NATS object store")
	return nil
}

// Close drains the connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc == nil {
		return nil
	}
	err := s.nc.Drain()
	s.nc, s.obj = nil, nil
	return err
}

func (s *Store) bucket(op string) (jetstream.ObjectStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.obj == nil {
		return nil, remote.Wrap(op, errors.New("not connected"))
	}
	return s.obj, nil
}

// ListFiles implements remote.Store. Entries are ordered by id.
func (s *Store) ListFiles(ctx context.Context) ([]remote.FileDescriptor, error) {
	obj, err := s.bucket("list")
	if err != nil {
		return nil, err
	}
	infos, err := obj.List(ctx)
	if errors.Is(err, jetstream.ErrNoObjectsFound) {
		return []remote.FileDescriptor{}, nil
	}
	if err != nil {
		return nil, remote.Wrap("list", err)
	}

	files := make([]remote.FileDescriptor, 0, len(infos))
	for _, info := range infos {
		if info.Deleted {
			continue
		}
		files = append(files, describe(info))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
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
	s.folderMu.Lock()
	defer s.folderMu.Unlock()

	existing, err := s.FindFilesForQuery(ctx, remote.NameQuery(name))
	if err != nil {
		return remote.FileDescriptor{}, remote.Wrap("create_folder", err)
	}
	for _, f := range existing {
		if f.IsFolder() && sameParent(f, parentID) {
			return remote.FileDescriptor{}, remote.Wrap("create_folder",
				fmt.Errorf("%w: folder %q", remote.ErrAlreadyExists, name))
		}
	}

	info, err := s.put(ctx, "create_folder", uuid.NewString(), name, remote.KindFolder, parentID, remote.MimeFolder, nil)
	if err != nil {
		return remote.FileDescriptor{}, err
	}
	return describe(info), nil
}

// UploadFile implements remote.Store.
func (s *Store) UploadFile(ctx context.Context, localPath, mimeHint, parentID string) (remote.FileDescriptor, error) {
	data, err := os.ReadFile(localPath) //nolint:gosec // staging path chosen by the caller
	if err != nil {
		return remote.FileDescriptor{}, remote.Wrap("upload", err)
	}
	info, err := s.put(ctx, "upload", uuid.NewString(), filepath.Base(localPath), remote.KindFile, parentID, mimeHint, data)
	if err != nil {
		return remote.FileDescriptor{}, err
	}
	return describe(info), nil
}

// UpdateFile implements remote.Store.
func (s *Store) UpdateFile(ctx context.Context, id, localPath string) (remote.FileDescriptor, error) {
	obj, err := s.bucket("update")
	if err != nil {
		return remote.FileDescriptor{}, err
	}
	current, err := obj.GetInfo(ctx, id)
	if err != nil {
		return remote.FileDescriptor{}, remote.Wrap("update", mapNotFound(err, id))
	}
	desc := describe(current)
	if desc.IsFolder() {
		return remote.FileDescriptor{}, remote.Wrap("update", fmt.Errorf("%s is a folder", id))
	}

	data, err := os.ReadFile(localPath) //nolint:gosec // staging path chosen by the caller
	if err != nil {
		return remote.FileDescriptor{}, remote.Wrap("update", err)
	}
	parent := ""
	if len(desc.ParentIDs) > 0 {
		parent = desc.ParentIDs[0]
	}
	info, err := s.put(ctx, "update", id, desc.Name, desc.Kind, parent, current.Metadata[metaMime], data)
	if err != nil {
		return remote.FileDescriptor{}, err
	}
	return describe(info), nil
}

// DownloadFile implements remote.Store.
func (s *Store) DownloadFile(ctx context.Context, id string) ([]byte, error) {
	obj, err := s.bucket("download")
	if err != nil {
		return nil, err
	}
	data, err := obj.GetBytes(ctx, id)
	if err != nil {
		return nil, remote.Wrap("download", mapNotFound(err, id))
	}
	return data, nil
}

// DeleteFile implements remote.Store.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	obj, err := s.bucket("delete")
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx, id); err != nil {
		return remote.Wrap("delete", mapNotFound(err, id))
	}
	return nil
}

func (s *Store) put(ctx context.Context, op, id, name string, kind remote.Kind, parentID, mime string, data []byte) (*jetstream.ObjectInfo, error) {
	obj, err := s.bucket(op)
	if err != nil {
		return nil, err
	}
	meta := jetstream.ObjectMeta{
		Name:        id,
		Description: name,
		Metadata: map[string]string{
			metaName:   name,
			metaKind:   string(kind),
			metaParent: parentID,
			metaMime:   mime,
		},
	}
	info, err := obj.Put(ctx, meta, bytes.NewReader(data))
	if err != nil {
		return nil, remote.Wrap(op, err)
	}
	return info, nil
}

func describe(info *jetstream.ObjectInfo) remote.FileDescriptor {
	desc := remote.FileDescriptor{ID: info.Name, Name: info.Name, Kind: remote.KindOther}
	if info.Metadata == nil {
		return desc
	}
	if name, ok := info.Metadata[metaName]; ok {
		desc.Name = name
	}
	switch remote.Kind(info.Metadata[metaKind]) {
	case remote.KindFile:
		desc.Kind = remote.KindFile
	case remote.KindFolder:
		desc.Kind = remote.KindFolder
	}
	if parent := info.Metadata[metaParent]; parent != "" {
		desc.ParentIDs = []string{parent}
	}
	return desc
}

func sameParent(f remote.FileDescriptor, parentID string) bool {
	if parentID == "" {
		return len(f.ParentIDs) == 0
	}
	return f.InFolder(parentID)
}

func mapNotFound(err error, id string) error {
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, id)
	}
	return err
}

func isAuthError(err error) bool {
	if errors.Is(err, nats.ErrAuthorization) ||
		errors.Is(err, nats.ErrAuthExpired) ||
		errors.Is(err, nats.ErrAuthRevoked) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "authorization violation")
}

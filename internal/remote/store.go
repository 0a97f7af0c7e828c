// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package remote

import (
	"context"
	"slices"
)

// Kind classifies a remote entry.
type Kind string

// Entry kinds.
const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
	KindOther  Kind = "other"
)

// Mime hints passed to UploadFile.
const (
	MimeJSON   = "application/json"
	MimeFolder = "application/vnd.tablesync.folder"
)

// FileDescriptor describes one remote entry.
type FileDescriptor struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Kind      Kind     `json:"kind"`
	ParentIDs []string `json:"parent_ids,omitempty"`
}

// IsFolder reports whether the entry is a folder.
func (f FileDescriptor) IsFolder() bool {
	return f.Kind == KindFolder
}

// InFolder reports whether folderID is one of the entry's parents.
func (f FileDescriptor) InFolder(folderID string) bool {
	return slices.Contains(f.ParentIDs, folderID)
}

// Credentials is the result of a sign-in. Empty fields fall back to the
// backend's configured credentials.
type Credentials struct {
	User     string
	Password string
	Token    string
}

// Store is the remote object store contract.
//
// All methods honour ctx cancellation. Implementations must be safe for
// concurrent use once Connect has returned.
type Store interface {
	// Connect resolves the session. It returns ErrAuthRequired when no
	// usable credentials are available.
	Connect(ctx context.Context, creds Credentials) error

	// ListFiles returns every entry in the store.
	ListFiles(ctx context.Context) ([]FileDescriptor, error)

	// FindFilesForQuery returns entries matching query (see ParseQuery).
	FindFilesForQuery(ctx context.Context, query string) ([]FileDescriptor, error)

	// CreateFolder creates a folder. It fails with ErrAlreadyExists when a
	// folder of that name already exists under parentID.
	CreateFolder(ctx context.Context, name, parentID string) (FileDescriptor, error)

	// UploadFile stores the file at localPath as a new entry named after
	// its base name.
	UploadFile(ctx context.Context, localPath, mimeHint, parentID string) (FileDescriptor, error)

	// UpdateFile replaces the content of entry id, keeping its id.
	UpdateFile(ctx context.Context, id, localPath string) (FileDescriptor, error)

	// DownloadFile returns the content of entry id.
	DownloadFile(ctx context.Context, id string) ([]byte, error)

	// DeleteFile removes entry id.
	DeleteFile(ctx context.Context, id string) error
}

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package backup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/tablesync/internal/database"
	"github.com/tomtom215/tablesync/internal/remote"
	"github.com/tomtom215/tablesync/internal/remote/localfs"
	"github.com/tomtom215/tablesync/internal/settings"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// testEnv wires every backup collaborator against in-memory or temp-dir
// backends.
type testEnv struct {
	t          *testing.T
	ctx        context.Context
	db         *database.DB
	settings   *settings.Store
	remoteRoot string
	remote     *localfs.Store
	manifests  *ManifestStore
	observer   *Observer
	orch       *Orchestrator
	clock      *fakeClock
}

// newTestEnv creates an environment with its own remote directory.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithRemote(t, filepath.Join(t.TempDir(), "remote"), nil)
}

// newTestEnvWithRemote creates an environment on the remote directory at
// root. wrap, when set, decorates the remote store seen by the
// orchestrator.
func newTestEnvWithRemote(t *testing.T, root string, wrap func(remote.Store) remote.Store) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Options{Driver: database.DriverSQLite, Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st, err := settings.Open(settings.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	clock := newFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	manifests := NewManifestStore(st, clock.Now)
	if _, err := manifests.EnsureInitialized(ctx, database.SchemaVersion); err != nil {
		t.Fatalf("initialize manifest: %v", err)
	}

	fs := localfs.New(root)
	var store remote.Store = fs
	if wrap != nil {
		store = wrap(fs)
	}

	observer := NewObserver(db)
	t.Cleanup(observer.Stop)

	orch, err := NewOrchestrator(Config{
		Remote:     store,
		Manifests:  manifests,
		Observer:   observer,
		Codecs:     []Codec{NewSampleCodec(db)},
		Counter:    db,
		Settings:   st,
		StagingDir: t.TempDir(),
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	return &testEnv{
		t:          t,
		ctx:        ctx,
		db:         db,
		settings:   st,
		remoteRoot: root,
		remote:     fs,
		manifests:  manifests,
		observer:   observer,
		orch:       orch,
		clock:      clock,
	}
}

// startObserver starts the observer with the production callback and
// returns a counter of callback invocations.
func (e *testEnv) startObserver() *callCounter {
	e.t.Helper()
	counter := &callCounter{}
	err := e.observer.Start(func(table TableKind) {
		if err := e.manifests.Touch(context.Background(), table); err != nil {
			e.t.Errorf("touch %s: %v", table, err)
		}
		counter.inc()
	})
	if err != nil {
		e.t.Fatalf("start observer: %v", err)
	}
	return counter
}

func (e *testEnv) addSample(id, qr string) {
	e.t.Helper()
	if err := e.db.UpsertSample(e.ctx, database.Sample{ID: id, QR: qr}); err != nil {
		e.t.Fatalf("upsert sample %s: %v", id, err)
	}
}

func (e *testEnv) localManifest() Manifest {
	e.t.Helper()
	m, err := e.manifests.Load(e.ctx)
	if err != nil {
		e.t.Fatalf("load manifest: %v", err)
	}
	return m
}

// remoteFiles returns the non-folder entries named name.
func (e *testEnv) remoteFiles(name string) []remote.FileDescriptor {
	e.t.Helper()
	if err := e.remote.Connect(e.ctx, remote.Credentials{}); err != nil {
		e.t.Fatalf("connect: %v", err)
	}
	found, err := e.remote.FindFilesForQuery(e.ctx, remote.NameQuery(name))
	if err != nil {
		e.t.Fatalf("find %s: %v", name, err)
	}
	return onlyFiles(found)
}

// remoteContent downloads the single remote file named name.
func (e *testEnv) remoteContent(name string) string {
	e.t.Helper()
	files := e.remoteFiles(name)
	if len(files) != 1 {
		e.t.Fatalf("expected exactly one remote %s, got %d", name, len(files))
	}
	data, err := e.remote.DownloadFile(e.ctx, files[0].ID)
	if err != nil {
		e.t.Fatalf("download %s: %v", name, err)
	}
	return string(data)
}

// putRemote uploads content as name into the remote backup folder,
// creating the folder when needed.
func (e *testEnv) putRemote(name, content string) remote.FileDescriptor {
	e.t.Helper()
	if err := e.remote.Connect(e.ctx, remote.Credentials{}); err != nil {
		e.t.Fatalf("connect: %v", err)
	}
	folder, err := e.orch.resolveFolder(e.ctx)
	if err != nil {
		e.t.Fatalf("resolve folder: %v", err)
	}
	path := filepath.Join(e.t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		e.t.Fatalf("write %s: %v", name, err)
	}
	desc, err := e.remote.UploadFile(e.ctx, path, remote.MimeJSON, folder.ID)
	if err != nil {
		e.t.Fatalf("upload %s: %v", name, err)
	}
	return desc
}

// replaceRemote overwrites the content of the remote file id.
func (e *testEnv) replaceRemote(id, name, content string) {
	e.t.Helper()
	path := filepath.Join(e.t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		e.t.Fatalf("write %s: %v", name, err)
	}
	if _, err := e.remote.UpdateFile(e.ctx, id, path); err != nil {
		e.t.Fatalf("update %s: %v", name, err)
	}
}

type callCounter struct {
	mu sync.Mutex
	n  int
}

func (c *callCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *callCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func uploadedNames(files []remote.FileDescriptor) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}

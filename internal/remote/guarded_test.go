// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package remote

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// scriptedStore returns err from every call and counts calls.
type scriptedStore struct {
	err   error
	calls atomic.Int32
	files []FileDescriptor
}

func (s *scriptedStore) Connect(context.Context, Credentials) error {
	s.calls.Add(1)
	return s.err
}

func (s *scriptedStore) ListFiles(context.Context) ([]FileDescriptor, error) {
	s.calls.Add(1)
	return s.files, s.err
}

func (s *scriptedStore) FindFilesForQuery(_ context.Context, query string) ([]FileDescriptor, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	q, err := ParseQuery(query)
	if err != nil {
		return nil, err
	}
	return Filter(s.files, q), nil
}

func (s *scriptedStore) CreateFolder(_ context.Context, name, parentID string) (FileDescriptor, error) {
	s.calls.Add(1)
	return FileDescriptor{ID: "f", Name: name, Kind: KindFolder}, s.err
}

func (s *scriptedStore) UploadFile(context.Context, string, string, string) (FileDescriptor, error) {
	s.calls.Add(1)
	return FileDescriptor{ID: "u"}, s.err
}

func (s *scriptedStore) UpdateFile(_ context.Context, id, _ string) (FileDescriptor, error) {
	s.calls.Add(1)
	return FileDescriptor{ID: id}, s.err
}

func (s *scriptedStore) DownloadFile(context.Context, string) ([]byte, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []byte("payload"), nil
}

func (s *scriptedStore) DeleteFile(context.Context, string) error {
	s.calls.Add(1)
	return s.err
}

func TestGuardedPassesThrough(t *testing.T) {
	inner := &scriptedStore{files: []FileDescriptor{{ID: "1", Name: "config.json"}}}
	g := NewGuarded(inner, GuardOptions{Name: "test-pass"})
	ctx := context.Background()

	files, err := g.FindFilesForQuery(ctx, NameQuery("config.json"))
	if err != nil || len(files) != 1 {
		t.Fatalf("FindFilesForQuery = %v, %v", files, err)
	}
	data, err := g.DownloadFile(ctx, "1")
	if err != nil || string(data) != "payload" {
		t.Fatalf("DownloadFile = %q, %v", data, err)
	}
	if g.State() != "closed" {
		t.Errorf("state = %s, want closed", g.State())
	}
}

func TestGuardedOpensAfterFailures(t *testing.T) {
	inner := &scriptedStore{err: errors.New("connection reset")}
	g := NewGuarded(inner, GuardOptions{Name: "test-open", MaxFailures: 2, OpenTimeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.ListFiles(ctx)
		var se *StoreError
		if !errors.As(err, &se) || se.Op != "list" {
			t.Fatalf("call %d: expected StoreError(list), got %v", i, err)
		}
	}

	_, err := g.ListFiles(ctx)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls.Load())
	}
	if g.State() != "open" {
		t.Errorf("state = %s, want open", g.State())
	}
}

func TestGuardedIgnoresBenignErrors(t *testing.T) {
	inner := &scriptedStore{err: ErrAuthRequired}
	g := NewGuarded(inner, GuardOptions{Name: "test-benign", MaxFailures: 1})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := g.Connect(ctx, Credentials{}); !errors.Is(err, ErrAuthRequired) {
			t.Fatalf("expected ErrAuthRequired, got %v", err)
		}
	}
	if g.State() != "closed" {
		t.Errorf("auth failures should not open the breaker, state = %s", g.State())
	}
}

func TestGuardedRateLimitHonoursContext(t *testing.T) {
	inner := &scriptedStore{}
	g := NewGuarded(inner, GuardOptions{Name: "test-rate", RequestsPerSecond: 0.001, Burst: 1})

	if err := g.DeleteFile(context.Background(), "x"); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.DeleteFile(ctx, "x")
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError from limiter, got %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls.Load())
	}
}

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/metrics"
	"github.com/tomtom215/tablesync/internal/settings"
)

// ManifestBacking persists the manifest as an opaque string.
// LoadManifest returns settings.ErrNotFound when nothing is stored.
type ManifestBacking interface {
	LoadManifest(ctx context.Context) (string, error)
	SaveManifest(ctx context.Context, raw string) error
}

// ManifestStore owns the local manifest. Every read-modify-write holds one
// mutex, so observer updates and export bookkeeping never interleave.
type ManifestStore struct {
	backing ManifestBacking
	now     func() time.Time
	mu      sync.Mutex
}

// NewManifestStore creates a store on top of backing. A nil now uses
// time.Now.
func NewManifestStore(backing ManifestBacking, now func() time.Time) *ManifestStore {
	if now == nil {
		now = time.Now
	}
	return &ManifestStore{backing: backing, now: now}
}

// Load returns the stored manifest. It fails with ErrNotInitialized when
// nothing is stored and ErrCorruptManifest when the stored value is
// unreadable.
func (s *ManifestStore) Load(ctx context.Context) (Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Raw returns the stored manifest string exactly as persisted.
func (s *ManifestStore) Raw(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.backing.LoadManifest(ctx)
	if errors.Is(err, settings.ErrNotFound) {
		return "", ErrNotInitialized
	}
	if err != nil {
		return "", fmt.Errorf("load manifest: %w", err)
	}
	return raw, nil
}

// Save overwrites the stored manifest.
func (s *ManifestStore) Save(ctx context.Context, m Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, m, "save")
}

// Update applies fn to the current manifest and stores the result. The
// whole cycle runs under the store lock. reason labels the metric.
func (s *ManifestStore) Update(ctx context.Context, reason string, fn func(Manifest) (Manifest, error)) (Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked(ctx)
	if err != nil {
		return Manifest{}, err
	}
	next, err := fn(current)
	if err != nil {
		return Manifest{}, err
	}
	if err := s.saveLocked(ctx, next, reason); err != nil {
		return Manifest{}, err
	}
	return next, nil
}

// Touch stamps table with the current time. Stamps only move forward, so a
// change landing in the same second as the last exported stamp still
// differs from it.
func (s *ManifestStore) Touch(ctx context.Context, table TableKind) error {
	_, err := s.Update(ctx, "table_changed", func(m Manifest) (Manifest, error) {
		return m.WithAdvancedTimestamp(table, s.now()), nil
	})
	return err
}

// EnsureInitialized guarantees a usable manifest for schema version.
//
// A missing or corrupt manifest is replaced by a fresh one with every table
// stamped now. An existing manifest with a different version only gets its
// version field changed. Tables missing from an existing manifest are
// stamped now.
func (s *ManifestStore) EnsureInitialized(ctx context.Context, version int) (Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked(ctx)
	switch {
	case errors.Is(err, ErrNotInitialized):
		m := NewManifest(version, s.now())
		logging.Info().Int("schema_version", version).Msg("Creating local backup manifest")
		return m, s.saveLocked(ctx, m, "initialize")
	case errors.Is(err, ErrCorruptManifest):
		m := NewManifest(version, s.now())
		logging.Warn().Err(err).Int("schema_version", version).Msg("Local backup manifest unreadable, re-seeding")
		return m, s.saveLocked(ctx, m, "repair")
	case err != nil:
		return Manifest{}, err
	}

	next := current
	reason := ""
	if next.SchemaVersion != version {
		logging.Info().
			Int("from", next.SchemaVersion).
			Int("to", version).
			Msg("Updating manifest schema version")
		next = next.WithSchemaVersion(version)
		reason = "schema_version"
	}
	for _, k := range AllTables() {
		if next.Timestamp(k) == "" {
			next = next.WithUpdatedTimestamp(k, s.now())
			reason = "backfill"
		}
	}
	if reason == "" {
		return current, nil
	}
	return next, s.saveLocked(ctx, next, reason)
}

// Adopt replaces the local table timestamps with those of the remote
// manifest in raw, keeping the local schema version. Tables the remote
// manifest does not mention keep their local timestamps.
func (s *ManifestStore) Adopt(ctx context.Context, raw []byte) (Manifest, error) {
	remoteManifest, err := ParseManifest(raw)
	if err != nil {
		return Manifest{}, fmt.Errorf("adopt remote manifest: %w", err)
	}
	return s.Update(ctx, "adopt", func(local Manifest) (Manifest, error) {
		next := local
		for _, k := range AllTables() {
			if ts := remoteManifest.Timestamp(k); ts != "" {
				next = next.withTimestamp(k, ts)
			}
		}
		return next, nil
	})
}

func (s *ManifestStore) loadLocked(ctx context.Context) (Manifest, error) {
	raw, err := s.backing.LoadManifest(ctx)
	if errors.Is(err, settings.ErrNotFound) || (err == nil && raw == "") {
		return Manifest{}, ErrNotInitialized
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("load manifest: %w", err)
	}
	m, err := ParseManifest([]byte(raw))
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}
	return m, nil
}

func (s *ManifestStore) saveLocked(ctx context.Context, m Manifest, reason string) error {
	data, err := m.Encode()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := s.backing.SaveManifest(ctx, string(data)); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	metrics.RecordManifestUpdate(reason)
	return nil
}

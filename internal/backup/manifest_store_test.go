// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package backup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/tablesync/internal/settings"
)

func newTestManifestStore(t *testing.T) (*ManifestStore, *settings.Store, *fakeClock) {
	t.Helper()
	st, err := settings.Open(settings.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	clock := newFakeClock(jan1)
	return NewManifestStore(st, clock.Now), st, clock
}

func TestManifestStore_LoadNotInitialized(t *testing.T) {
	store, _, _ := newTestManifestStore(t)
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Load error = %v, want ErrNotInitialized", err)
	}
	if _, err := store.Raw(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Raw error = %v, want ErrNotInitialized", err)
	}
}

func TestManifestStore_EnsureInitialized_FirstRun(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestManifestStore(t)

	m, err := store.EnsureInitialized(ctx, 1)
	if err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	if m.SchemaVersion != 1 {
		t.Errorf("version = %d, want 1", m.SchemaVersion)
	}
	for _, k := range AllTables() {
		if got := m.Timestamp(k); got != "01.01.2024 00:00:00" {
			t.Errorf("%s timestamp = %q", k, got)
		}
	}

	raw, err := store.Raw(ctx)
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	if want := `{"version":"1","db":{"sample":"01.01.2024 00:00:00"}}`; raw != want {
		t.Errorf("Raw = %s, want %s", raw, want)
	}
}

func TestManifestStore_EnsureInitialized_VersionChangeKeepsTimestamps(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestManifestStore(t)

	if _, err := store.EnsureInitialized(ctx, 1); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	clock.Set(jan2)

	m, err := store.EnsureInitialized(ctx, 2)
	if err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	if m.SchemaVersion != 2 {
		t.Errorf("version = %d, want 2", m.SchemaVersion)
	}
	if got := m.Timestamp(TableSample); got != "01.01.2024 00:00:00" {
		t.Errorf("timestamp = %q, want unchanged", got)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Equal(m) {
		t.Errorf("Load = %+v, want %+v", loaded, m)
	}
}

func TestManifestStore_EnsureInitialized_SameVersionNoop(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestManifestStore(t)

	first, err := store.EnsureInitialized(ctx, 1)
	if err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	clock.Set(jan2)
	second, err := store.EnsureInitialized(ctx, 1)
	if err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("manifest changed on re-initialization: %+v -> %+v", first, second)
	}
}

func TestManifestStore_CorruptManifest(t *testing.T) {
	ctx := context.Background()
	store, st, _ := newTestManifestStore(t)

	if err := st.SaveManifest(ctx, "{broken"); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrCorruptManifest) {
		t.Fatalf("Load error = %v, want ErrCorruptManifest", err)
	}
	if err := store.Touch(ctx, TableSample); !errors.Is(err, ErrCorruptManifest) {
		t.Errorf("Touch error = %v, want ErrCorruptManifest", err)
	}

	m, err := store.EnsureInitialized(ctx, 1)
	if err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	if m.Timestamp(TableSample) == "" {
		t.Error("re-seeded manifest has no sample timestamp")
	}
	if _, err := store.Load(ctx); err != nil {
		t.Errorf("Load after re-seed: %v", err)
	}
}

func TestManifestStore_EnsureInitialized_BackfillsTables(t *testing.T) {
	ctx := context.Background()
	store, st, _ := newTestManifestStore(t)

	if err := st.SaveManifest(ctx, `{"version":"1","db":{}}`); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}
	m, err := store.EnsureInitialized(ctx, 1)
	if err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	if got := m.Timestamp(TableSample); got != "01.01.2024 00:00:00" {
		t.Errorf("backfilled timestamp = %q", got)
	}
}

func TestManifestStore_Touch(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestManifestStore(t)

	if _, err := store.EnsureInitialized(ctx, 1); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	clock.Set(jan2)
	if err := store.Touch(ctx, TableSample); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	m, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Timestamp(TableSample); got != "02.01.2024 00:00:00" {
		t.Errorf("timestamp = %q, want 02.01.2024 00:00:00", got)
	}
}

func TestManifestStore_TouchWithinOneSecond(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestManifestStore(t)

	if _, err := store.EnsureInitialized(ctx, 1); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}

	seen := map[string]bool{"01.01.2024 00:00:00": true}
	for i := 1; i <= 3; i++ {
		clock.Set(jan1.Add(time.Duration(i) * 200 * time.Millisecond))
		if err := store.Touch(ctx, TableSample); err != nil {
			t.Fatalf("Touch %d: %v", i, err)
		}
		m, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		ts := m.Timestamp(TableSample)
		if seen[ts] {
			t.Fatalf("Touch %d repeated stamp %q", i, ts)
		}
		seen[ts] = true
	}
}

func TestManifestStore_Adopt(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestManifestStore(t)

	if _, err := store.EnsureInitialized(ctx, 2); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}

	m, err := store.Adopt(ctx, []byte(`{"version":"1","db":{"sample":"05.05.2023 10:00:00"}}`))
	if err != nil {
		t.Fatalf("Adopt: %v", err)
	}
	if m.SchemaVersion != 2 {
		t.Errorf("version = %d, want local version 2", m.SchemaVersion)
	}
	if got := m.Timestamp(TableSample); got != "05.05.2023 10:00:00" {
		t.Errorf("timestamp = %q, want remote timestamp", got)
	}

	if _, err := store.Adopt(ctx, []byte("garbage")); err == nil {
		t.Error("Adopt(garbage) succeeded, want error")
	}
}

func TestManifestStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestManifestStore(t)

	if _, err := store.EnsureInitialized(ctx, 1); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "test", func(m Manifest) (Manifest, error) {
				mu.Lock()
				counts++
				mu.Unlock()
				return m.WithSchemaVersion(m.SchemaVersion + 1), nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	m, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.SchemaVersion != 21 {
		t.Errorf("version = %d after 20 increments, want 21 (lost update)", m.SchemaVersion)
	}
	if counts != 20 {
		t.Errorf("update callbacks = %d, want 20", counts)
	}
}

func TestManifestStore_UpdateErrorLeavesManifest(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestManifestStore(t)

	before, err := store.EnsureInitialized(ctx, 1)
	if err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	wantErr := errors.New("boom")
	if _, err := store.Update(ctx, "test", func(Manifest) (Manifest, error) {
		return Manifest{}, wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("Update error = %v, want %v", err, wantErr)
	}
	after, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !after.Equal(before) {
		t.Errorf("manifest changed after failed update")
	}
}

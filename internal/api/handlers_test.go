// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/tablesync/internal/backup"
	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/remote"
	"github.com/tomtom215/tablesync/internal/settings"
)

type fakeBackups struct {
	exportOpts   backup.ExportOptions
	exportResult backup.ExportResult
	exportErr    error
	importOpts   backup.ImportOptions
	importResult backup.ImportResult
	importErr    error
	busy         bool
	exports      int
	imports      int
}

func (f *fakeBackups) Export(_ context.Context, opts backup.ExportOptions) (backup.ExportResult, error) {
	f.exports++
	f.exportOpts = opts
	return f.exportResult, f.exportErr
}

func (f *fakeBackups) Import(_ context.Context, opts backup.ImportOptions) (backup.ImportResult, error) {
	f.imports++
	f.importOpts = opts
	return f.importResult, f.importErr
}

func (f *fakeBackups) Busy() bool { return f.busy }

type fakeManifests struct {
	raw string
	err error
}

func (f fakeManifests) Raw(context.Context) (string, error) { return f.raw, f.err }

type fakeObserver bool

func (f fakeObserver) Active() bool { return bool(f) }

type fakeCounter map[string]int

func (f fakeCounter) Count(_ context.Context, table string) (int, error) {
	n, ok := f[table]
	if !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	return n, nil
}

type fakeSchedule struct {
	lastRun, nextRun time.Time
	err              error
}

func (f fakeSchedule) Status() (time.Time, time.Time, error) { return f.lastRun, f.nextRun, f.err }

// envelope mirrors Response with a raw data field for assertions.
type envelope struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Metadata Metadata        `json:"metadata"`
	Error    *Error          `json:"error"`
}

func serve(t *testing.T, h *Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v\nbody: %s", err, rec.Body.String())
		}
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	h := NewHandler(Deps{Version: "1.2.3"})
	rec, env := serve(t, h, http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.Status != "success" {
		t.Errorf("envelope status = %q", env.Status)
	}
	var health HealthResponse
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if health.Status != "healthy" || health.Version != "1.2.3" {
		t.Errorf("health = %+v", health)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request ID header")
	}
	if env.Metadata.RequestID != rec.Header().Get(RequestIDHeader) {
		t.Errorf("metadata request_id = %q, header = %q", env.Metadata.RequestID, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	NewRouter(NewHandler(Deps{})).ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(NewHandler(Deps{})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tablesync_") {
		t.Error("metrics output does not contain tablesync metrics")
	}
}

func TestUnknownRoute(t *testing.T) {
	rec, env := serve(t, NewHandler(Deps{}), http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("got %d %+v", rec.Code, env.Error)
	}

	rec, env = serve(t, NewHandler(Deps{}), http.MethodGet, "/api/v1/backup/export", "")
	if rec.Code != http.StatusMethodNotAllowed || env.Error == nil || env.Error.Code != "METHOD_NOT_ALLOWED" {
		t.Errorf("got %d %+v", rec.Code, env.Error)
	}
}

func TestManifest(t *testing.T) {
	raw := `{"version":"3","db":{"sample":"01.01.2024 00:00:00"}}`
	h := NewHandler(Deps{Manifests: fakeManifests{raw: raw}})

	rec, env := serve(t, h, http.MethodGet, "/api/v1/manifest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	m, err := backup.ParseManifest(env.Data)
	if err != nil {
		t.Fatalf("parse manifest from response: %v", err)
	}
	if m.SchemaVersion != 3 || m.Tables[backup.TableSample] != "01.01.2024 00:00:00" {
		t.Errorf("manifest = %+v", m)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

func TestManifestNotInitialized(t *testing.T) {
	h := NewHandler(Deps{Manifests: fakeManifests{err: backup.ErrNotInitialized}})
	rec, env := serve(t, h, http.MethodGet, "/api/v1/manifest", "")
	if rec.Code != http.StatusInternalServerError || env.Error.Code != ErrCodeNotInitialized {
		t.Errorf("got %d %+v", rec.Code, env.Error)
	}
}

func TestExport(t *testing.T) {
	backups := &fakeBackups{exportResult: backup.ExportResult{
		Mode:   backup.ExportFull,
		Tables: []backup.TableKind{backup.TableSample},
		Uploaded: []remote.FileDescriptor{
			{ID: "f1", Name: "sample.json", Kind: remote.KindFile},
			{ID: "f2", Name: "config.json", Kind: remote.KindFile},
		},
	}}
	h := NewHandler(Deps{Backups: backups})

	rec, env := serve(t, h, http.MethodPost, "/api/v1/backup/export", `{"force_full": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !backups.exportOpts.ForceFull {
		t.Error("force_full was not passed to Export")
	}

	var resp ExportResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if resp.Mode != "full" || resp.UpToDate || len(resp.Uploaded) != 2 {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Tables) != 1 || resp.Tables[0] != "sample" {
		t.Errorf("tables = %v", resp.Tables)
	}
}

func TestExportUpToDateWithEmptyBody(t *testing.T) {
	backups := &fakeBackups{exportResult: backup.ExportResult{Mode: backup.ExportPartial}}
	h := NewHandler(Deps{Backups: backups})

	rec, env := serve(t, h, http.MethodPost, "/api/v1/backup/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if backups.exportOpts.ForceFull {
		t.Error("empty body must not force a full export")
	}

	var resp ExportResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !resp.UpToDate || resp.Uploaded == nil || len(resp.Uploaded) != 0 {
		t.Errorf("response = %+v", resp)
	}
}

func TestExportRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"force_full": tru}`},
		{"unknown field", `{"force": true}`},
		{"wrong type", `{"force_full": "yes"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backups := &fakeBackups{}
			rec, env := serve(t, NewHandler(Deps{Backups: backups}), http.MethodPost, "/api/v1/backup/export", tt.body)
			if rec.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != ErrCodeBadRequest {
				t.Errorf("got %d %+v", rec.Code, env.Error)
			}
			if backups.exports != 0 {
				t.Error("Export ran for an invalid body")
			}
		})
	}
}

func TestExportRejectsNonJSONContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/export", strings.NewReader("force_full=true"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	NewRouter(NewHandler(Deps{Backups: &fakeBackups{}})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestBackupErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"auth", fmt.Errorf("connect: %w", remote.ErrAuthRequired), http.StatusUnauthorized, ErrCodeAuthRequired},
		{"no manifest", backup.ErrNoManifest, http.StatusNotFound, ErrCodeNoManifest},
		{"busy", backup.ErrBusy, http.StatusConflict, ErrCodeBusy},
		{"unknown table", &backup.UnknownTableError{Name: "legacy"}, http.StatusUnprocessableEntity, ErrCodeUnknownTable},
		{"store", &remote.StoreError{Op: "upload", Err: errors.New("quota exceeded")}, http.StatusBadGateway, ErrCodeRemoteStore},
		{"corrupt", backup.ErrCorruptManifest, http.StatusInternalServerError, ErrCodeCorruptManifest},
		{"other", errors.New("disk full"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backups := &fakeBackups{exportErr: tt.err, importErr: tt.err}
			h := NewHandler(Deps{Backups: backups})

			for _, path := range []string{"/api/v1/backup/export", "/api/v1/backup/import"} {
				rec, env := serve(t, h, http.MethodPost, path, "{}")
				if rec.Code != tt.status {
					t.Errorf("%s: status = %d, want %d", path, rec.Code, tt.status)
				}
				if env.Status != "error" || env.Error == nil || env.Error.Code != tt.code {
					t.Errorf("%s: envelope = %+v", path, env)
				}
				if string(env.Data) != "null" {
					t.Errorf("%s: data = %s, want null", path, env.Data)
				}
			}
		})
	}
}

// captureLogs routes the global logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logging.Logger()
	logging.SetLogger(logging.NewTestLogger(zerolog.SyncWriter(&buf)))
	t.Cleanup(func() { logging.SetLogger(prev) })
	return &buf
}

func TestInternalErrorMessageIsGeneric(t *testing.T) {
	logs := captureLogs(t)
	backups := &fakeBackups{exportErr: errors.New("open /secret/path: permission denied")}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/export", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	rec := httptest.NewRecorder()
	NewRouter(NewHandler(Deps{Backups: backups})).ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Error == nil || strings.Contains(env.Error.Message, "/secret/path") {
		t.Errorf("internal error leaked: %+v", env.Error)
	}

	type logEntry struct {
		Level     string `json:"level"`
		Message   string `json:"message"`
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
	var entry *logEntry
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err == nil && e.Message == "API error" {
			entry = &e
			break
		}
	}
	if entry == nil {
		t.Fatalf("no API error log line in:\n%s", logs.String())
	}
	if entry.Level != "error" || !strings.Contains(entry.Error, "/secret/path") {
		t.Errorf("log entry = %+v, want the full error at error level", entry)
	}
	if entry.RequestID != "req-7" {
		t.Errorf("log request_id = %q, want req-7", entry.RequestID)
	}
}

func TestImport(t *testing.T) {
	backups := &fakeBackups{importResult: backup.ImportResult{Tables: []string{"sample"}}}
	h := NewHandler(Deps{Backups: backups})

	rec, env := serve(t, h, http.MethodPost, "/api/v1/backup/import", `{"overwrite": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !backups.importOpts.Overwrite {
		t.Error("overwrite was not passed to Import")
	}
	var resp ImportResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if resp.Skipped || len(resp.Tables) != 1 || resp.Tables[0] != "sample" {
		t.Errorf("response = %+v", resp)
	}
}

func TestImportSkipped(t *testing.T) {
	backups := &fakeBackups{importResult: backup.ImportResult{Skipped: true}}
	_, env := serve(t, NewHandler(Deps{Backups: backups}), http.MethodPost, "/api/v1/backup/import", "")

	var resp ImportResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !resp.Skipped || resp.Tables == nil || len(resp.Tables) != 0 {
		t.Errorf("response = %+v", resp)
	}
}

func TestStatus(t *testing.T) {
	st, err := settings.Open(settings.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	exportedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := settings.Set(ctx, st, settings.LastExportAt, exportedAt); err != nil {
		t.Fatal(err)
	}
	if err := settings.Set(ctx, st, settings.LastExportMode, "partial"); err != nil {
		t.Fatal(err)
	}

	nextRun := exportedAt.Add(time.Hour)
	h := NewHandler(Deps{
		Backups:  &fakeBackups{busy: true},
		Observer: fakeObserver(true),
		Counter:  fakeCounter{backup.TableSample.SourceTable(): 7},
		Settings: st,
		Schedule: fakeSchedule{lastRun: exportedAt, nextRun: nextRun, err: backup.ErrBusy},
	})

	rec, env := serve(t, h, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp StatusResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	if !resp.ObserverActive || !resp.BackupRunning {
		t.Errorf("flags = %+v", resp)
	}
	if resp.LastExportAt == nil || !resp.LastExportAt.Equal(exportedAt) {
		t.Errorf("last_export_at = %v", resp.LastExportAt)
	}
	if resp.LastExportMode != "partial" {
		t.Errorf("last_export_mode = %q", resp.LastExportMode)
	}
	if resp.LastImportAt != nil {
		t.Errorf("last_import_at = %v, want unset", resp.LastImportAt)
	}
	if resp.RowCounts["sample"] != 7 {
		t.Errorf("row_counts = %v", resp.RowCounts)
	}
	if resp.Schedule == nil || resp.Schedule.NextRun == nil || !resp.Schedule.NextRun.Equal(nextRun) {
		t.Errorf("schedule = %+v", resp.Schedule)
	}
	if resp.Schedule.LastError == "" {
		t.Error("schedule last_error should be reported")
	}
}

func TestStatusMinimalDeps(t *testing.T) {
	rec, env := serve(t, NewHandler(Deps{}), http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if resp.ObserverActive || resp.RowCounts != nil || resp.Schedule != nil {
		t.Errorf("response = %+v", resp)
	}
}

func TestStatusCountFailure(t *testing.T) {
	h := NewHandler(Deps{Counter: fakeCounter{}})
	rec, env := serve(t, h, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusInternalServerError || env.Error.Code != ErrCodeInternalError {
		t.Errorf("got %d %+v", rec.Code, env.Error)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec, _ := serve(t, NewHandler(Deps{}), http.MethodGet, "/api/v1/status", "")
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"line\nbreak", `line\x0abreak`},
		{"tab\there", `tab\x09here`},
		{"del\x7f", `del\x7f`},
	}
	for _, tt := range tests {
		if got := sanitizeLogValue(tt.in); got != tt.want {
			t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

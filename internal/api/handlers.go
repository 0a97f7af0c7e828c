// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tablesync/internal/backup"
	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/remote"
	"github.com/tomtom215/tablesync/internal/settings"
	"github.com/tomtom215/tablesync/internal/validation"
)

// maxBodyBytes caps request bodies; both bodies are a single flag.
const maxBodyBytes = 4 << 10

// BackupRunner runs exports and imports. *backup.Orchestrator implements it.
type BackupRunner interface {
	Export(ctx context.Context, opts backup.ExportOptions) (backup.ExportResult, error)
	Import(ctx context.Context, opts backup.ImportOptions) (backup.ImportResult, error)
	Busy() bool
}

// ManifestReader returns the local manifest in wire format.
type ManifestReader interface {
	Raw(ctx context.Context) (string, error)
}

// ObserverState reports whether change tracking is active.
type ObserverState interface {
	Active() bool
}

// TableCounter counts the rows of one source table.
type TableCounter interface {
	Count(ctx context.Context, table string) (int, error)
}

// ScheduleStatus reports the periodic backup state.
type ScheduleStatus interface {
	Status() (lastRun, nextRun time.Time, lastErr error)
}

// Deps are the collaborators of Handler. Observer, Counter, Settings and
// Schedule are optional.
type Deps struct {
	Backups   BackupRunner
	Manifests ManifestReader
	Observer  ObserverState
	Counter   TableCounter
	Settings  *settings.Store
	Schedule  ScheduleStatus
	Version   string
}

// Handler serves the API routes.
type Handler struct {
	deps      Deps
	startTime time.Time
}

// NewHandler returns a Handler over deps.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, startTime: time.Now()}
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status  string  `json:"status"`
	Version string  `json:"version,omitempty"`
	Uptime  float64 `json:"uptime_seconds"`
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, HealthResponse{
		Status:  "healthy",
		Version: h.deps.Version,
		Uptime:  time.Since(h.startTime).Seconds(),
	})
}

// StatusResponse is the /api/v1/status payload.
type StatusResponse struct {
	ObserverActive bool           `json:"observer_active"`
	BackupRunning  bool           `json:"backup_running"`
	LastExportAt   *time.Time     `json:"last_export_at,omitempty"`
	LastExportMode string         `json:"last_export_mode,omitempty"`
	LastImportAt   *time.Time     `json:"last_import_at,omitempty"`
	Schedule       *ScheduleInfo  `json:"schedule,omitempty"`
	RowCounts      map[string]int `json:"row_counts,omitempty"`
}

// ScheduleInfo is the periodic backup part of StatusResponse.
type ScheduleInfo struct {
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Status reports observer state, bookkeeping and row counts.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{}

	if h.deps.Observer != nil {
		resp.ObserverActive = h.deps.Observer.Active()
	}
	if h.deps.Backups != nil {
		resp.BackupRunning = h.deps.Backups.Busy()
	}

	if h.deps.Settings != nil {
		var err error
		if resp.LastExportAt, err = timeSetting(ctx, h.deps.Settings, settings.LastExportAt); err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to read settings", err)
			return
		}
		if resp.LastImportAt, err = timeSetting(ctx, h.deps.Settings, settings.LastImportAt); err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to read settings", err)
			return
		}
		mode, err := settings.Get(ctx, h.deps.Settings, settings.LastExportMode)
		if err != nil && !errors.Is(err, settings.ErrNotFound) {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to read settings", err)
			return
		}
		resp.LastExportMode = mode
	}

	if h.deps.Schedule != nil {
		lastRun, nextRun, lastErr := h.deps.Schedule.Status()
		info := &ScheduleInfo{LastRun: nonZero(lastRun), NextRun: nonZero(nextRun)}
		if lastErr != nil {
			info.LastError = lastErr.Error()
		}
		resp.Schedule = info
	}

	if h.deps.Counter != nil {
		resp.RowCounts = make(map[string]int, len(backup.AllTables()))
		for _, table := range backup.AllTables() {
			n, err := h.deps.Counter.Count(ctx, table.SourceTable())
			if err != nil {
				respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to count rows", err)
				return
			}
			resp.RowCounts[table.Name()] = n
		}
	}

	respondSuccess(w, r, resp)
}

// Manifest returns the local manifest exactly as it would be uploaded.
func (h *Handler) Manifest(w http.ResponseWriter, r *http.Request) {
	raw, err := h.deps.Manifests.Raw(r.Context())
	if err != nil {
		respondBackupError(w, r, err)
		return
	}
	respondSuccess(w, r, json.RawMessage(raw))
}

// ExportRequest is the body of POST /api/v1/backup/export.
type ExportRequest struct {
	ForceFull bool `json:"force_full"`
}

// ExportResponse describes a finished export.
type ExportResponse struct {
	Mode     string                  `json:"mode"`
	UpToDate bool                    `json:"up_to_date"`
	Tables   []string                `json:"tables"`
	Uploaded []remote.FileDescriptor `json:"uploaded"`
}

// Export runs a backup to the remote store.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := logging.ContextWithNewCorrelationID(r.Context())
	result, err := h.deps.Backups.Export(ctx, backup.ExportOptions{ForceFull: req.ForceFull})
	if err != nil {
		respondBackupError(w, r, err)
		return
	}

	tables := make([]string, len(result.Tables))
	for i, t := range result.Tables {
		tables[i] = t.Name()
	}
	uploaded := result.Uploaded
	if uploaded == nil {
		uploaded = []remote.FileDescriptor{}
	}
	respondSuccess(w, r, ExportResponse{
		Mode:     string(result.Mode),
		UpToDate: result.UpToDate(),
		Tables:   tables,
		Uploaded: uploaded,
	})
}

// ImportRequest is the body of POST /api/v1/backup/import.
type ImportRequest struct {
	Overwrite bool `json:"overwrite"`
}

// ImportResponse describes a finished import.
type ImportResponse struct {
	Skipped bool     `json:"skipped"`
	Tables  []string `json:"tables"`
}

// Import restores the local tables from the remote store.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := logging.ContextWithNewCorrelationID(r.Context())
	result, err := h.deps.Backups.Import(ctx, backup.ImportOptions{Overwrite: req.Overwrite})
	if err != nil {
		respondBackupError(w, r, err)
		return
	}

	tables := result.Tables
	if tables == nil {
		tables = []string{}
	}
	respondSuccess(w, r, ImportResponse{Skipped: result.Skipped, Tables: tables})
}

// decodeBody reads an optional JSON body into v and validates it. An empty
// body leaves v at its zero value. It writes the error response itself and
// reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", err)
			return false
		}
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		respondJSON(w, r, http.StatusBadRequest, &Response{
			Status: "error",
			Error: &Error{
				Code:    ErrCodeValidationFailed,
				Message: verr.Error(),
				Details: verr.Fields,
			},
		})
		return false
	}
	return true
}

func timeSetting(ctx context.Context, store *settings.Store, key settings.Key[time.Time]) (*time.Time, error) {
	v, err := settings.Get(ctx, store, key)
	if errors.Is(err, settings.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func nonZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

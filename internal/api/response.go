// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tablesync/internal/backup"
	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/remote"
)

// Response is the envelope of every JSON response.
type Response struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *Error      `json:"error,omitempty"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error is the machine- and human-readable failure description.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeAuthRequired     = "AUTH_REQUIRED"
	ErrCodeNoManifest       = "NO_MANIFEST"
	ErrCodeBusy             = "BUSY"
	ErrCodeUnknownTable     = "UNKNOWN_TABLE"
	ErrCodeRemoteStore      = "REMOTE_STORE_ERROR"
	ErrCodeCorruptManifest  = "CORRUPT_MANIFEST"
	ErrCodeNotInitialized   = "NOT_INITIALIZED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// sanitizeLogValue escapes control characters so request-derived strings
// cannot forge log lines.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON writes response with status. API responses are never cached.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, response *Response) {
	response.Metadata = Metadata{
		Timestamp: time.Now().UTC(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}

	data, err := json.Marshal(response)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	respondJSON(w, r, http.StatusOK, &Response{Status: "success", Data: data})
}

// respondError writes an error envelope. err, when set, is logged but never
// sent to the client beyond message.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		event := logging.Ctx(r.Context()).Error()
		if status < http.StatusInternalServerError {
			event = logging.Ctx(r.Context()).Warn()
		}
		event.Str("code", code).Str("error", sanitizeLogValue(err.Error())).Msg("API error")
	}

	respondJSON(w, r, status, &Response{
		Status: "error",
		Error:  &Error{Code: code, Message: message},
	})
}

// classifyError maps the backup and remote error taxonomy to an HTTP status
// and error code.
func classifyError(err error) (int, string) {
	var storeErr *remote.StoreError
	switch {
	case errors.Is(err, remote.ErrAuthRequired):
		return http.StatusUnauthorized, ErrCodeAuthRequired
	case errors.Is(err, backup.ErrNoManifest):
		return http.StatusNotFound, ErrCodeNoManifest
	case errors.Is(err, backup.ErrBusy):
		return http.StatusConflict, ErrCodeBusy
	case errors.Is(err, backup.ErrUnknownTable):
		return http.StatusUnprocessableEntity, ErrCodeUnknownTable
	case errors.Is(err, backup.ErrCorruptManifest):
		return http.StatusInternalServerError, ErrCodeCorruptManifest
	case errors.Is(err, backup.ErrNotInitialized):
		return http.StatusInternalServerError, ErrCodeNotInitialized
	case errors.As(err, &storeErr):
		return http.StatusBadGateway, ErrCodeRemoteStore
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

// respondBackupError writes err using classifyError. Taxonomy errors carry
// their message to the client; anything else is reported generically.
func respondBackupError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	message := err.Error()
	if code == ErrCodeInternalError {
		message = "Internal server error"
	}
	respondError(w, r, status, code, message, err)
}

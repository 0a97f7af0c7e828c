// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

// Package validation wraps a process-wide go-playground/validator instance.
//
// Field names in error messages come from the koanf or json struct tag so
// that configuration errors name the YAML key and API errors name the JSON
// property the caller actually wrote.
//
//	type addSampleRequest struct {
//	    ID string `json:"id" validate:"required,sampleid"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), nil)
//	}
package validation

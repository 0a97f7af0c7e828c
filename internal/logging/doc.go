// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

// Package logging provides centralized zerolog-based structured logging for Tablesync.
//
// The package keeps a single global zerolog logger that every component writes
// through. It offers JSON output for unattended runs and console output for
// interactive CLI use.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("table", "sample").Msg("table exported")
//	logging.Error().Err(err).Msg("export failed")
//
// # Correlation
//
// Export and import calls attach a short correlation ID to their context so
// every line written during one call can be grouped:
//
//	ctx = logging.ContextWithNewCorrelationID(ctx)
//	logging.Ctx(ctx).Info().Msg("partial backup started")
//
// # slog Bridge
//
// Libraries that accept *slog.Logger (suture through sutureslog, watermill)
// are handed NewSlogLogger so their output lands in the same zerolog stream.
package logging

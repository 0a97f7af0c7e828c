// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

// Package config loads Tablesync configuration with Koanf v2.
//
// Sources are layered, later sources overriding earlier ones:
//
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (explicit path, CONFIG_PATH, or DefaultConfigPaths)
//  3. Environment variables from the explicit mapping table in envTransformFunc
//
// After unmarshalling, struct tags are checked with go-playground/validator
// and cross-field rules are applied by Config.Validate.
//
// Example config.yaml:
//
//	database:
//	  driver: duckdb
//	  path: /data/tablesync.duckdb
//	remote:
//	  kind: nats
//	  nats:
//	    url: nats://backup.internal:4222
//	    bucket: tablesync
//	backup:
//	  schedule_enabled: true
//	  interval: 1h
package config

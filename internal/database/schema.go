// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS samples (
		id VARCHAR PRIMARY KEY,
		qr VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schema_info (
		version INTEGER NOT NULL
	)`,
}

func (db *DB) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	stored, err := db.storedSchemaVersion(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.conn.ExecContext(ctx, `INSERT INTO schema_info (version) VALUES (?)`, SchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	case stored != SchemaVersion:
		if _, err := db.conn.ExecContext(ctx, `UPDATE schema_info SET version = ?`, SchemaVersion); err != nil {
			return fmt.Errorf("failed to upgrade schema version from %d: %w", stored, err)
		}
	}
	return nil
}

func (db *DB) storedSchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := db.conn.QueryRowContext(ctx, `SELECT version FROM schema_info LIMIT 1`).Scan(&version)
	return version, err
}

// SchemaVersion returns the schema version recorded in the database.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	version, err := db.storedSchemaVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Tables lists the user tables that take part in backups.
func Tables() []string {
	return []string{TableSamples}
}

func knownTable(table string) bool {
	for _, t := range Tables() {
		if t == table {
			return true
		}
	}
	return false
}

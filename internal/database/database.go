// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/tomtom215/tablesync/internal/logging"
)

// SchemaVersion is the schema version written by this build.
const SchemaVersion = 1

// Table names.
const (
	TableSamples = "samples"
)

// Supported drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// MemoryPath opens a throwaway in-memory database.
const MemoryPath = ":memory:"

// Options configures Open.
type Options struct {
	Driver string
	Path   string
}

// DB wraps the embedded database connection and its change bus.
type DB struct {
	conn   *sql.DB
	driver string
	bus    *gochannel.GoChannel

	// writeMu serializes mutations so events are published in commit order.
	writeMu sync.Mutex

	closeOnce sync.Once
}

// Open opens the database, creates the schema if needed and records the
// current schema version.
func Open(ctx context.Context, opts Options) (*DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverDuckDB
	}

	if opts.Path != MemoryPath && opts.Path != "" {
		dir := filepath.Dir(opts.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	dsn, err := buildDSN(driver, opts.Path)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// A second connection to an in-memory SQLite database would see an
		// empty database of its own.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	db := &DB{
		conn:   conn,
		driver: driver,
		bus: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NewSlogLogger(logging.NewSlogLoggerWithLevel("warn")),
		),
	}

	if err := db.initSchema(ctx); err != nil {
		closeQuietly(db)
		return nil, err
	}

	logging.Info().
		Str("driver", driver).
		Str("path", opts.Path).
		Int("schema_version", SchemaVersion).
		Msg("Local database opened")
	return db, nil
}

func buildDSN(driver, path string) (string, error) {
	switch driver {
	case DriverDuckDB:
		if path == MemoryPath {
			return "", nil
		}
		return path + "?access_mode=read_write", nil
	case DriverSQLite:
		if path == MemoryPath || path == "" {
			return MemoryPath, nil
		}
		return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Driver returns the name of the database/sql driver in use.
func (db *DB) Driver() string {
	return db.driver
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close stops the change bus and closes the connection. Open subscriptions
// see their channels closed.
func (db *DB) Close() error {
	var err error
	db.closeOnce.Do(func() {
		if busErr := db.bus.Close(); busErr != nil {
			logging.Warn().Err(busErr).Msg("Failed to close change bus")
		}
		err = db.conn.Close()
	})
	return err
}

// isDuplicateKey reports whether err is a primary key violation on either
// engine.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "primary key")
}

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package config

import "time"

// Remote store kinds.
const (
	RemoteKindLocalFS = "localfs"
	RemoteKindNATS    = "nats"
)

// Database drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// Config is the complete application configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Settings SettingsConfig `koanf:"settings"`
	Remote   RemoteConfig   `koanf:"remote"`
	Backup   BackupConfig   `koanf:"backup"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DatabaseConfig selects the local embedded database.
type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"required,oneof=duckdb sqlite"`
	// Path is the database file. ":memory:" keeps everything in memory.
	Path string `koanf:"path" validate:"required"`
}

// SettingsConfig configures the Badger-backed settings store.
type SettingsConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// RemoteConfig configures the remote object store and its guard rails.
type RemoteConfig struct {
	Kind string `koanf:"kind" validate:"required,oneof=localfs nats"`

	// LocalDir is the root directory of the localfs store.
	LocalDir string `koanf:"local_dir"`

	// Folder is the name of the dedicated backup folder.
	Folder string `koanf:"folder" validate:"required"`

	// RequestsPerSecond throttles remote calls. Zero disables throttling.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int     `koanf:"burst" validate:"gte=0"`

	// Circuit breaker around remote calls.
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures" validate:"gte=1"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`

	NATS NATSConfig `koanf:"nats"`
}

// NATSConfig configures the NATS JetStream object store backend.
type NATSConfig struct {
	URL      string `koanf:"url"`
	Bucket   string `koanf:"bucket"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Token    string `koanf:"token"`

	// Embedded starts an in-process NATS server with JetStream enabled.
	Embedded bool   `koanf:"embedded"`
	StoreDir string `koanf:"store_dir"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" validate:"gte=-1,lte=65535"`
}

// BackupConfig configures staging and scheduled backups.
type BackupConfig struct {
	// StagingDir holds table files between serialization and transfer.
	// Empty means a per-call temporary directory.
	StagingDir string `koanf:"staging_dir"`

	ScheduleEnabled bool          `koanf:"schedule_enabled"`
	Interval        time.Duration `koanf:"interval"`
	// ForceFullOnSchedule makes scheduled runs full backups.
	ForceFullOnSchedule bool `koanf:"force_full_on_schedule"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

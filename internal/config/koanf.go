// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"tablesync.yaml",
	"tablesync.yml",
	"/etc/tablesync/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: DriverDuckDB,
			Path:   "data/tablesync.duckdb",
		},
		Settings: SettingsConfig{
			Path: "data/settings",
		},
		Remote: RemoteConfig{
			Kind:               RemoteKindLocalFS,
			LocalDir:           "data/remote",
			Folder:             "db",
			RequestsPerSecond:  10,
			Burst:              5,
			BreakerMaxFailures: 5,
			BreakerTimeout:     60 * time.Second,
			NATS: NATSConfig{
				URL:      "nats://127.0.0.1:4222",
				Bucket:   "tablesync",
				Embedded: false,
				StoreDir: "data/nats",
				Host:     "127.0.0.1",
				Port:     4222,
			},
		},
		Backup: BackupConfig{
			ScheduleEnabled: false,
			Interval:        time.Hour,
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8377,
			Timeout: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables. An explicit path takes precedence over CONFIG_PATH
// and DefaultConfigPaths; an explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := path
	if configPath == "" {
		configPath = findConfigFile()
	} else if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names onto config keys.
// Unmapped variables are dropped so unrelated environment does not leak in.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		"database_driver": "database.driver",
		"database_path":   "database.path",

		"settings_path":      "settings.path",
		"settings_in_memory": "settings.in_memory",

		"remote_kind":                 "remote.kind",
		"remote_local_dir":            "remote.local_dir",
		"remote_folder":               "remote.folder",
		"remote_requests_per_second":  "remote.requests_per_second",
		"remote_burst":                "remote.burst",
		"remote_breaker_max_failures": "remote.breaker_max_failures",
		"remote_breaker_timeout":      "remote.breaker_timeout",

		"nats_url":       "remote.nats.url",
		"nats_bucket":    "remote.nats.bucket",
		"nats_user":      "remote.nats.user",
		"nats_password":  "remote.nats.password",
		"nats_token":     "remote.nats.token",
		"nats_embedded":  "remote.nats.embedded",
		"nats_store_dir": "remote.nats.store_dir",
		"nats_host":      "remote.nats.host",
		"nats_port":      "remote.nats.port",

		"backup_staging_dir":            "backup.staging_dir",
		"backup_schedule_enabled":       "backup.schedule_enabled",
		"backup_interval":               "backup.interval",
		"backup_force_full_on_schedule": "backup.force_full_on_schedule",

		"http_enabled": "server.enabled",
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/validation"
)

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	if err := c.validateSettings(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateBackup(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSettings() error {
	if !c.Settings.InMemory && c.Settings.Path == "" {
		return fmt.Errorf("settings.path is required unless settings.in_memory is set")
	}
	return nil
}

func (c *Config) validateRemote() error {
	switch c.Remote.Kind {
	case RemoteKindLocalFS:
		if c.Remote.LocalDir == "" {
			return fmt.Errorf("remote.local_dir is required for the localfs remote")
		}
	case RemoteKindNATS:
		if c.Remote.NATS.Bucket == "" {
			return fmt.Errorf("remote.nats.bucket is required for the nats remote")
		}
		if !c.Remote.NATS.Embedded && c.Remote.NATS.URL == "" {
			return fmt.Errorf("remote.nats.url is required unless remote.nats.embedded is set")
		}
		if c.Remote.NATS.Embedded && c.Remote.NATS.StoreDir == "" {
			return fmt.Errorf("remote.nats.store_dir is required for the embedded server")
		}
	}
	if c.Remote.BreakerTimeout < 0 {
		return fmt.Errorf("remote.breaker_timeout must not be negative")
	}
	return nil
}

func (c *Config) validateBackup() error {
	if c.Backup.ScheduleEnabled && c.Backup.Interval < time.Minute {
		return fmt.Errorf("backup.interval must be at least 1m when scheduling is enabled, got %s", c.Backup.Interval)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}
	return nil
}

// LoggingConfig converts the logging section for logging.Init.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.Caller = c.Logging.Caller
	return cfg
}

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

/*
scheduler.go - Periodic Export

This file implements scheduled exports so the remote copy follows local
changes without manual intervention.

Timer Logic:
  - The first run happens one interval after Serve starts
  - The timer is reset after each run completes, so runs never overlap
  - A run that finds another export in progress (ErrBusy) is skipped

Integration:
Scheduler implements suture.Service (Serve(ctx) error) and is run by the
supervisor tree. It stops when ctx is cancelled.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/tablesync/internal/logging"
)

// Exporter is the part of Orchestrator the scheduler drives.
type Exporter interface {
	Export(ctx context.Context, opts ExportOptions) (ExportResult, error)
}

// Scheduler runs an export every interval.
type Scheduler struct {
	exporter  Exporter
	interval  time.Duration
	forceFull bool

	mu      sync.Mutex
	lastRun time.Time
	nextRun time.Time
	lastErr error
}

// NewScheduler creates a scheduler. forceFull makes every run a full
// export.
func NewScheduler(exporter Exporter, interval time.Duration, forceFull bool) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("backup: schedule interval must be positive, got %s", interval)
	}
	return &Scheduler{exporter: exporter, interval: interval, forceFull: forceFull}, nil
}

// Serve runs the schedule until ctx is done.
func (s *Scheduler) Serve(ctx context.Context) error {
	next := s.calculateNextRun(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	logging.Info().Dur("interval", s.interval).Time("next_run", next).Msg("Backup scheduler started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Backup scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.runOnce(ctx)
			next = s.calculateNextRun(time.Now())
			timer.Reset(time.Until(next))
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.exporter.Export(ctx, ExportOptions{ForceFull: s.forceFull})

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.mu.Unlock()

	switch {
	case errors.Is(err, ErrBusy):
		logging.Info().Msg("Scheduled backup skipped, another backup is running")
	case err != nil:
		logging.Error().Err(err).Msg("Scheduled backup failed")
	default:
		logging.Info().
			Str("mode", string(result.Mode)).
			Int("uploaded", len(result.Uploaded)).
			Msg("Scheduled backup completed")
	}
}

// calculateNextRun determines when the next scheduled export should run.
func (s *Scheduler) calculateNextRun(now time.Time) time.Time {
	next := now.Add(s.interval)
	s.mu.Lock()
	s.nextRun = next
	s.mu.Unlock()
	return next
}

// Status returns the last and next run times and the last run's error.
func (s *Scheduler) Status() (lastRun, nextRun time.Time, lastErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.nextRun, s.lastErr
}

// String implements fmt.Stringer for supervisor logs.
func (s *Scheduler) String() string {
	return "backup-scheduler"
}

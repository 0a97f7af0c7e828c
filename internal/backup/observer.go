// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package backup

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/tablesync/internal/database"
	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/metrics"
)

// ChangeSource provides per-table change streams. The first event of every
// subscription reflects current state, not a mutation. The channel closes
// when ctx is done.
type ChangeSource interface {
	Subscribe(ctx context.Context, table string) (<-chan database.ChangeEvent, error)
}

// Observer forwards local table mutations to a callback. It is Inactive
// until Start and can be suspended around bulk writes.
type Observer struct {
	source ChangeSource
	tables []TableKind

	mu       sync.Mutex
	run      *observerRun
	callback func(TableKind)
	// stops counts explicit Stop calls. A resume from an earlier Suspend
	// does nothing once it changed.
	stops uint64
}

type observerRun struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewObserver creates an inactive observer for tables, or all tables when
// none are given.
func NewObserver(source ChangeSource, tables ...TableKind) *Observer {
	if len(tables) == 0 {
		tables = AllTables()
	}
	return &Observer{source: source, tables: tables}
}

// Start subscribes to every table and invokes onTableChanged once per
// mutation batch. It is a no-op when already active.
func (o *Observer) Start(onTableChanged func(TableKind)) error {
	if onTableChanged == nil {
		return fmt.Errorf("observer callback is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &observerRun{cancel: cancel}

	streams := make([]<-chan database.ChangeEvent, 0, len(o.tables))
	for _, table := range o.tables {
		events, err := o.source.Subscribe(ctx, table.SourceTable())
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe to %s: %w", table, err)
		}
		streams = append(streams, events)
	}

	for i, table := range o.tables {
		run.wg.Add(1)
		go o.watch(ctx, run, table, streams[i], onTableChanged)
	}

	o.run = run
	o.callback = onTableChanged
	metrics.SetObserverActive(true)
	logging.Debug().Int("tables", len(o.tables)).Msg("Change observer started")
	return nil
}

// Stop cancels all subscriptions and waits for in-flight callbacks. It is
// safe to call when inactive. A pending resume from Suspend is cancelled.
func (o *Observer) Stop() {
	o.mu.Lock()
	o.stops++
	o.mu.Unlock()
	o.halt()
}

func (o *Observer) halt() {
	o.mu.Lock()
	run := o.run
	o.run = nil
	o.mu.Unlock()

	if run == nil {
		return
	}
	run.cancel()
	run.wg.Wait()
	metrics.SetObserverActive(false)
	logging.Debug().Msg("Change observer stopped")
}

// Active reports whether the observer is subscribed.
func (o *Observer) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run != nil
}

// Suspend stops the observer and returns a function that restarts it with
// the last registered callback if it was active when suspended and Stop
// was not called in between. The returned function is safe to call more
// than once.
func (o *Observer) Suspend() (resume func()) {
	o.mu.Lock()
	wasActive := o.run != nil
	stops := o.stops
	o.mu.Unlock()

	o.halt()
	var once sync.Once
	return func() {
		once.Do(func() {
			if wasActive {
				o.resume(stops)
			}
		})
	}
}

func (o *Observer) resume(stops uint64) {
	o.mu.Lock()
	cb := o.callback
	stopped := o.stops != stops
	o.mu.Unlock()
	if cb == nil {
		return
	}
	if stopped {
		logging.Debug().Msg("Change observer stopped while suspended, not resuming")
		return
	}
	if err := o.Start(cb); err != nil {
		logging.Error().Err(err).Msg("Failed to resume change observer")
	}
}

func (o *Observer) watch(ctx context.Context, run *observerRun, table TableKind, events <-chan database.ChangeEvent, onTableChanged func(TableKind)) {
	defer run.wg.Done()

	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if first {
				first = false
				metrics.RecordObserverNotification(table.Name(), "initial")
				continue
			}

			open := coalesce(table, events)
			if ctx.Err() != nil {
				metrics.RecordObserverNotification(table.Name(), "suppressed")
				return
			}
			metrics.RecordObserverNotification(table.Name(), "delivered")
			onTableChanged(table)
			if !open {
				return
			}
		}
	}
}

// coalesce drains events already queued so one callback covers them.
// It reports whether the stream is still open.
func coalesce(table TableKind, events <-chan database.ChangeEvent) bool {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return false
			}
			metrics.RecordObserverNotification(table.Name(), "coalesced")
		default:
			return true
		}
	}
}

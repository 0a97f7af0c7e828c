// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package database

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tablesync/internal/logging"
)

// Op describes what produced a ChangeEvent.
type Op string

// Change operations.
const (
	OpSnapshot Op = "snapshot"
	OpUpsert   Op = "upsert"
	OpDelete   Op = "delete"
	OpReplace  Op = "replace"
)

// ChangeEvent is one notification on a table subscription.
type ChangeEvent struct {
	Table string `json:"table"`
	Op    Op     `json:"op"`
	// Rows is the row count for snapshots, otherwise the rows touched.
	Rows int `json:"rows"`
}

func topicFor(table string) string {
	return "table." + table
}

// publish must be called after the mutation committed.
func (db *DB) publish(ev ChangeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logging.Error().Err(err).Str("table", ev.Table).Msg("Failed to encode change event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := db.bus.Publish(topicFor(ev.Table), msg); err != nil {
		logging.Warn().Err(err).Str("table", ev.Table).Msg("Failed to publish change event")
	}
}

// Subscribe streams change events for table until ctx is cancelled or the
// database is closed. The first event is always an OpSnapshot carrying the
// current row count; it does not describe a mutation.
func (db *DB) Subscribe(ctx context.Context, table string) (<-chan ChangeEvent, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	// Subscribe before taking the snapshot so no mutation falls in between.
	messages, err := db.bus.Subscribe(ctx, topicFor(table))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
	}

	count, err := db.Count(ctx, table)
	if err != nil {
		return nil, err
	}

	out := make(chan ChangeEvent, 1)
	out <- ChangeEvent{Table: table, Op: OpSnapshot, Rows: count}

	go func() {
		defer close(out)
		for msg := range messages {
			var ev ChangeEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				logging.Warn().Err(err).Str("table", table).Msg("Dropping malformed change event")
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

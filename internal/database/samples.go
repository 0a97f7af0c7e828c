// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/tablesync/internal/metrics"
)

// Sample is one row of the samples table.
type Sample struct {
	ID string
	QR string
}

// Count returns the number of rows in table.
func (db *DB) Count(ctx context.Context, table string) (int, error) {
	if !knownTable(table) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	start := time.Now()
	var n int
	// table is checked against the fixed schema above.
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n) //nolint:gosec // table name is from a closed set
	metrics.RecordDBQuery("count", table, time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// CountAll returns the number of rows across every backed-up table.
func (db *DB) CountAll(ctx context.Context) (int, error) {
	total := 0
	for _, table := range Tables() {
		n, err := db.Count(ctx, table)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// ListSamples returns every sample ordered by id.
func (db *DB) ListSamples(ctx context.Context) ([]Sample, error) {
	start := time.Now()
	samples, err := db.listSamples(ctx)
	metrics.RecordDBQuery("list", TableSamples, time.Since(start), err)
	return samples, err
}

func (db *DB) listSamples(ctx context.Context) ([]Sample, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, qr FROM samples ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer closeWithLog(rows, "rows")

	samples := make([]Sample, 0)
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.ID, &s.QR); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}
	return samples, nil
}

// UpsertSample inserts s or replaces the row with the same id.
func (db *DB) UpsertSample(ctx context.Context, s Sample) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO samples (id, qr) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET qr = excluded.qr`,
		s.ID, s.QR)
	metrics.RecordDBQuery("upsert", TableSamples, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert sample %s: %w", s.ID, err)
	}

	db.publish(ChangeEvent{Table: TableSamples, Op: OpUpsert, Rows: 1})
	return nil
}

// DeleteSample removes the sample with the given id. It reports whether a
// row was removed; deleting a missing id publishes nothing.
func (db *DB) DeleteSample(ctx context.Context, id string) (bool, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `DELETE FROM samples WHERE id = ?`, id)
	metrics.RecordDBQuery("delete", TableSamples, time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to delete sample %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	db.publish(ChangeEvent{Table: TableSamples, Op: OpDelete, Rows: int(n)})
	return true, nil
}

// ReplaceSamples deletes every sample and inserts samples in one
// transaction. On any failure the table keeps its previous contents.
func (db *DB) ReplaceSamples(ctx context.Context, samples []Sample) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	start := time.Now()
	err := db.replaceSamples(ctx, samples)
	metrics.RecordDBQuery("replace", TableSamples, time.Since(start), err)
	if err != nil {
		return err
	}

	db.publish(ChangeEvent{Table: TableSamples, Op: OpReplace, Rows: len(samples)})
	return nil
}

func (db *DB) replaceSamples(ctx context.Context, samples []Sample) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM samples`); err != nil {
		return fmt.Errorf("failed to clear samples: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples (id, qr) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer closeWithLog(stmt, "statement")

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, s.ID, s.QR); err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateSample, s.ID)
			}
			return fmt.Errorf("failed to insert sample %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit samples: %w", err)
	}
	return nil
}

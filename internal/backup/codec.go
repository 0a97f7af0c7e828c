// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tablesync/internal/database"
)

// TableFile is one staged table payload.
type TableFile struct {
	Table TableKind
	Path  string
	Size  int
}

// Codec converts one table to and from its portable payload, a JSON object
// with a single key (the table name) holding an array of records.
type Codec interface {
	Table() TableKind

	// Export writes every row to "<table>.json" in stagingDir. An empty
	// table produces an empty array.
	Export(ctx context.Context, stagingDir string) (TableFile, error)

	// Import replaces all rows with the payload's records atomically.
	Import(ctx context.Context, payload []byte) error
}

// DecodeTablePayload splits a payload into its table and raw records. A key
// naming no known table yields *UnknownTableError.
func DecodeTablePayload(payload []byte) (TableKind, json.RawMessage, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return 0, nil, fmt.Errorf("decode table payload: %w", err)
	}
	if len(body) != 1 {
		return 0, nil, fmt.Errorf("table payload must have exactly one key, got %d", len(body))
	}
	for name, records := range body {
		table, ok := ParseTableKind(name)
		if !ok {
			return 0, nil, &UnknownTableError{Name: name}
		}
		return table, records, nil
	}
	return 0, nil, errors.New("empty table payload")
}

func encodeTablePayload(table TableKind, records any) ([]byte, error) {
	return json.Marshal(map[string]any{table.Name(): records})
}

func writeTableFile(stagingDir string, table TableKind, payload []byte) (TableFile, error) {
	path := filepath.Join(stagingDir, table.FileName())
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return TableFile{}, fmt.Errorf("write %s: %w", table.FileName(), err)
	}
	return TableFile{Table: table, Path: path, Size: len(payload)}, nil
}

// SampleRepository is the slice of the local database the sample codec
// needs.
type SampleRepository interface {
	ListSamples(ctx context.Context) ([]database.Sample, error)
	ReplaceSamples(ctx context.Context, samples []database.Sample) error
}

// SampleRecord is the portable shape of one sample row.
type SampleRecord struct {
	ID          string `json:"id"`
	SampleField string `json:"sampleField"`
}

// SampleCodec serializes the sample table.
type SampleCodec struct {
	repo SampleRepository
}

var _ Codec = (*SampleCodec)(nil)

// NewSampleCodec creates a codec backed by repo.
func NewSampleCodec(repo SampleRepository) *SampleCodec {
	return &SampleCodec{repo: repo}
}

// Table implements Codec.
func (c *SampleCodec) Table() TableKind {
	return TableSample
}

// Export implements Codec.
func (c *SampleCodec) Export(ctx context.Context, stagingDir string) (TableFile, error) {
	rows, err := c.repo.ListSamples(ctx)
	if err != nil {
		return TableFile{}, fmt.Errorf("read samples: %w", err)
	}
	records := make([]SampleRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, SampleRecord{ID: row.ID, SampleField: row.QR})
	}
	payload, err := encodeTablePayload(TableSample, records)
	if err != nil {
		return TableFile{}, fmt.Errorf("encode samples: %w", err)
	}
	return writeTableFile(stagingDir, TableSample, payload)
}

// Import implements Codec.
func (c *SampleCodec) Import(ctx context.Context, payload []byte) error {
	table, raw, err := DecodeTablePayload(payload)
	if err != nil {
		return err
	}
	if table != TableSample {
		return fmt.Errorf("payload for table %s passed to %s codec", table, TableSample)
	}

	var records []SampleRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("decode sample records: %w", err)
	}
	rows := make([]database.Sample, 0, len(records))
	for _, r := range records {
		rows = append(rows, database.Sample{ID: r.ID, QR: r.SampleField})
	}
	if err := c.repo.ReplaceSamples(ctx, rows); err != nil {
		return fmt.Errorf("replace samples: %w", err)
	}
	return nil
}

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package backup

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// TimestampLayout is the manifest timestamp format (dd.MM.yyyy HH:mm:ss).
const TimestampLayout = "02.01.2006 15:04:05"

// Manifest records the schema version and the last-modified timestamp of
// every table. Values are immutable: the With* methods return copies.
type Manifest struct {
	SchemaVersion int
	Tables        map[TableKind]string
}

// wireManifest is the interchange format shared with existing backups.
type wireManifest struct {
	Version json.RawMessage   `json:"version"`
	DB      map[string]string `json:"db"`
}

// FormatTimestamp renders t in the manifest layout, in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NewManifest returns a manifest with every table stamped at now.
func NewManifest(version int, now time.Time) Manifest {
	ts := FormatTimestamp(now)
	m := Manifest{SchemaVersion: version, Tables: make(map[TableKind]string, len(tableRegistry))}
	for _, k := range AllTables() {
		m.Tables[k] = ts
	}
	return m
}

// Timestamp returns the recorded timestamp of table, or "" when absent.
func (m Manifest) Timestamp(table TableKind) string {
	return m.Tables[table]
}

// WithUpdatedTimestamp returns a copy with table stamped at now.
func (m Manifest) WithUpdatedTimestamp(table TableKind, now time.Time) Manifest {
	return m.withTimestamp(table, FormatTimestamp(now))
}

// WithAdvancedTimestamp returns a copy with table stamped at now, or one
// second past its current stamp when now does not move it forward. Every
// call therefore yields a stamp that differs from the previous one.
func (m Manifest) WithAdvancedTimestamp(table TableKind, now time.Time) Manifest {
	next := now.UTC().Truncate(time.Second)
	if prev, err := time.Parse(TimestampLayout, m.Timestamp(table)); err == nil && !next.After(prev) {
		next = prev.Add(time.Second)
	}
	return m.withTimestamp(table, FormatTimestamp(next))
}

// WithSchemaVersion returns a copy with the version replaced.
func (m Manifest) WithSchemaVersion(version int) Manifest {
	out := m.clone()
	out.SchemaVersion = version
	return out
}

func (m Manifest) withTimestamp(table TableKind, ts string) Manifest {
	out := m.clone()
	out.Tables[table] = ts
	return out
}

func (m Manifest) clone() Manifest {
	out := Manifest{SchemaVersion: m.SchemaVersion, Tables: make(map[TableKind]string, len(m.Tables))}
	for k, v := range m.Tables {
		out.Tables[k] = v
	}
	return out
}

// Equal reports whether both manifests carry the same version and
// timestamps.
func (m Manifest) Equal(other Manifest) bool {
	return m.SchemaVersion == other.SchemaVersion && len(Diff(m, other)) == 0
}

// Diff returns the tables whose timestamps differ between remote and local,
// in TableKind order. Timestamps are compared as strings, so any
// difference counts, including clock skew.
func Diff(remote, local Manifest) []TableKind {
	var changed []TableKind
	for _, k := range AllTables() {
		if remote.Tables[k] != local.Tables[k] {
			changed = append(changed, k)
		}
	}
	return changed
}

// MarshalJSON writes the wire format. The version is written as a string.
func (m Manifest) MarshalJSON() ([]byte, error) {
	version, err := json.Marshal(strconv.Itoa(m.SchemaVersion))
	if err != nil {
		return nil, err
	}
	w := wireManifest{Version: version, DB: make(map[string]string, len(m.Tables))}
	for k, ts := range m.Tables {
		if !k.Valid() {
			continue
		}
		w.DB[k.Name()] = ts
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the wire format. The version may be a string or a
// number. Unknown tables are ignored and missing tables are left empty.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var w wireManifest
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	version, err := parseVersion(w.Version)
	if err != nil {
		return err
	}
	if w.DB == nil {
		return errors.New("manifest has no db section")
	}

	out := Manifest{SchemaVersion: version, Tables: make(map[TableKind]string, len(tableRegistry))}
	for _, k := range AllTables() {
		out.Tables[k] = w.DB[k.Name()]
	}
	*m = out
	return nil
}

func parseVersion(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("manifest has no version")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("decode manifest version: %w", err)
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("manifest version %q is not an integer", s)
		}
		return v, nil
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("decode manifest version: %w", err)
	}
	return v, nil
}

// ParseManifest decodes the wire format.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Encode returns the wire format of m.
func (m Manifest) Encode() ([]byte, error) {
	return json.Marshal(m)
}

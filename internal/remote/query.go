// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package remote

import (
	"fmt"
	"strings"
)

// Query is a parsed name equality predicate.
type Query struct {
	Name string
}

// Matches reports whether f satisfies the query.
func (q Query) Matches(f FileDescriptor) bool {
	return f.Name == q.Name
}

// NameQuery builds the query string matching entries named name.
func NameQuery(name string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(name)
	return "name = '" + escaped + "'"
}

// ParseQuery parses "name = 'literal'". Whitespace around tokens is ignored.
func ParseQuery(query string) (Query, error) {
	rest := strings.TrimSpace(query)
	field, rest, ok := strings.Cut(rest, "=")
	if !ok || strings.TrimSpace(field) != "name" {
		return Query{}, fmt.Errorf("%w: %q", ErrInvalidQuery, query)
	}

	rest = strings.TrimSpace(rest)
	if len(rest) < 2 || rest[0] != '\'' {
		return Query{}, fmt.Errorf("%w: %q", ErrInvalidQuery, query)
	}

	var b strings.Builder
	for i := 1; i < len(rest); i++ {
		c := rest[i]
		switch {
		case c == '\\' && i+1 < len(rest):
			i++
			b.WriteByte(rest[i])
		case c == '\'':
			if strings.TrimSpace(rest[i+1:]) != "" {
				return Query{}, fmt.Errorf("%w: trailing input in %q", ErrInvalidQuery, query)
			}
			return Query{Name: b.String()}, nil
		default:
			b.WriteByte(c)
		}
	}
	return Query{}, fmt.Errorf("%w: unterminated literal in %q", ErrInvalidQuery, query)
}

// Filter returns the entries of files matching query.
func Filter(files []FileDescriptor, q Query) []FileDescriptor {
	matched := make([]FileDescriptor, 0, 1)
	for _, f := range files {
		if q.Matches(f) {
			matched = append(matched, f)
		}
	}
	return matched
}

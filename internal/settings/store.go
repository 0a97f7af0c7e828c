// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// keyPrefix namespaces settings inside the Badger keyspace.
const keyPrefix = "setting:"

// ErrNotFound is returned when a key has never been set.
var ErrNotFound = errors.New("setting not found")

// Options configures Open.
type Options struct {
	Path     string
	InMemory bool
}

// Store persists settings in BadgerDB.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the Badger database described by opts.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = badgerLogger{}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under k, or ErrNotFound.
func Get[T any](ctx context.Context, s *Store, k Key[T]) (T, error) {
	var value T
	if err := ctx.Err(); err != nil {
		return value, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + k.name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", k.name, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &value)
		})
	})
	return value, err
}

// Set stores v under k, replacing any previous value.
func Set[T any](ctx context.Context, s *Store, k Key[T], v T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", k.name, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+k.name), data)
	})
}

// Delete removes k. Deleting a missing key is not an error.
func Delete[T any](ctx context.Context, s *Store, k Key[T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + k.name))
	})
}

// LoadManifest returns the stored manifest document.
func (s *Store) LoadManifest(ctx context.Context) (string, error) {
	return Get(ctx, s, DatabaseManifest)
}

// SaveManifest replaces the stored manifest document.
func (s *Store) SaveManifest(ctx context.Context, raw string) error {
	return Set(ctx, s, DatabaseManifest, raw)
}

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package services

import (
	"context"
	"fmt"

	"github.com/tomtom215/tablesync/internal/backup"
	"github.com/tomtom215/tablesync/internal/logging"
)

// ObserverRunner is the lifecycle of backup.Observer.
type ObserverRunner interface {
	Start(onTableChanged func(backup.TableKind)) error
	Stop()
}

// ManifestToucher records a table change in the local manifest.
type ManifestToucher interface {
	Touch(ctx context.Context, table backup.TableKind) error
}

// ObserverService keeps the change observer running while the tree is up.
// Every reported change stamps the table in the local manifest.
type ObserverService struct {
	observer  ObserverRunner
	manifests ManifestToucher
	name      string
}

// NewObserverService wires observer to manifests.
func NewObserverService(observer ObserverRunner, manifests ManifestToucher) *ObserverService {
	return &ObserverService{observer: observer, manifests: manifests, name: "change-observer"}
}

// Serve implements suture.Service.
func (s *ObserverService) Serve(ctx context.Context) error {
	if err := s.observer.Start(s.onTableChanged); err != nil {
		return fmt.Errorf("start change observer: %w", err)
	}
	logging.Info().Msg("Change observer running")

	<-ctx.Done()
	s.observer.Stop()
	return ctx.Err()
}

func (s *ObserverService) onTableChanged(table backup.TableKind) {
	if err := s.manifests.Touch(context.Background(), table); err != nil {
		logging.Error().Err(err).Str("table", table.Name()).Msg("Failed to record table change")
		return
	}
	logging.Debug().Str("table", table.Name()).Msg("Table change recorded")
}

// String implements fmt.Stringer.
func (s *ObserverService) String() string {
	return s.name
}

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/tablesync/internal/logging"
)

// EmbeddedServer is the lifecycle subset of natsobj.EmbeddedServer.
type EmbeddedServer interface {
	Running() bool
	Shutdown(ctx context.Context) error
}

// EmbeddedNATSService owns an already started embedded NATS server. It
// fails when the server stops on its own and shuts it down when the tree
// stops.
type EmbeddedNATSService struct {
	server          EmbeddedServer
	shutdownTimeout time.Duration
	checkInterval   time.Duration
	name            string
}

// NewEmbeddedNATSService wraps server.
func NewEmbeddedNATSService(server EmbeddedServer, shutdownTimeout time.Duration) *EmbeddedNATSService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &EmbeddedNATSService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		checkInterval:   5 * time.Second,
		name:            "nats-server",
	}
}

// Serve implements suture.Service.
func (s *EmbeddedNATSService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("nats server shutdown failed: %w", err)
			}
			logging.Info().Msg("Embedded NATS server stopped")
			return ctx.Err()
		case <-ticker.C:
			if !s.server.Running() {
				return fmt.Errorf("embedded NATS server is not running")
			}
		}
	}
}

// String implements fmt.Stringer.
func (s *EmbeddedNATSService) String() string {
	return s.name
}

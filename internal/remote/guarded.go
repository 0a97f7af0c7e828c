// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/tablesync/internal/logging"
	"github.com/tomtom215/tablesync/internal/metrics"
)

// GuardOptions configures Guarded.
type GuardOptions struct {
	// Name labels breaker metrics and logs.
	Name string

	// RequestsPerSecond limits call rate. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int

	// MaxFailures consecutive failures open the breaker.
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// Guarded wraps a Store with a circuit breaker and a rate limiter.
type Guarded struct {
	next    Store
	cb      *gobreaker.CircuitBreaker[interface{}]
	limiter *rate.Limiter
	name    string
}

var _ Store = (*Guarded)(nil)

// NewGuarded wraps next.
func NewGuarded(next Store, opts GuardOptions) *Guarded {
	name := opts.Name
	if name == "" {
		name = "remote-store"
	}
	maxFailures := opts.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := opts.OpenTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Caller mistakes and cancellations say nothing about remote health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrAuthRequired) ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrAlreadyExists) ||
				errors.Is(err, ErrInvalidQuery) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Remote store circuit breaker state transition")
			metrics.RecordCircuitBreakerTransition(name, stateToString(from), stateToString(to), stateToFloat(to))
		},
	})

	return &Guarded{next: next, cb: cb, limiter: limiter, name: name}
}

// State returns the breaker state name.
func (g *Guarded) State() string {
	return stateToString(g.cb.State())
}

func (g *Guarded) execute(ctx context.Context, op string, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			metrics.RecordRemoteCall(op, "rejected", time.Since(start))
			return nil, &StoreError{Op: op, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	result, err := g.cb.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordRemoteCall(op, "rejected", time.Since(start))
		return nil, &StoreError{Op: op, Err: err}
	case err != nil:
		metrics.RecordRemoteCall(op, "error", time.Since(start))
		return nil, Wrap(op, err)
	}
	metrics.RecordRemoteCall(op, "success", time.Since(start))
	return result, nil
}

func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// Connect implements Store.
func (g *Guarded) Connect(ctx context.Context, creds Credentials) error {
	_, err := g.execute(ctx, "connect", func() (interface{}, error) {
		return nil, g.next.Connect(ctx, creds)
	})
	return err
}

// ListFiles implements Store.
func (g *Guarded) ListFiles(ctx context.Context) ([]FileDescriptor, error) {
	return castResult[[]FileDescriptor](g.execute(ctx, "list", func() (interface{}, error) {
		return g.next.ListFiles(ctx)
	}))
}

// FindFilesForQuery implements Store.
func (g *Guarded) FindFilesForQuery(ctx context.Context, query string) ([]FileDescriptor, error) {
	return castResult[[]FileDescriptor](g.execute(ctx, "query", func() (interface{}, error) {
		return g.next.FindFilesForQuery(ctx, query)
	}))
}

// CreateFolder implements Store.
func (g *Guarded) CreateFolder(ctx context.Context, name, parentID string) (FileDescriptor, error) {
	return castResult[FileDescriptor](g.execute(ctx, "create_folder", func() (interface{}, error) {
		return g.next.CreateFolder(ctx, name, parentID)
	}))
}

// UploadFile implements Store.
func (g *Guarded) UploadFile(ctx context.Context, localPath, mimeHint, parentID string) (FileDescriptor, error) {
	return castResult[FileDescriptor](g.execute(ctx, "upload", func() (interface{}, error) {
		return g.next.UploadFile(ctx, localPath, mimeHint, parentID)
	}))
}

// UpdateFile implements Store.
func (g *Guarded) UpdateFile(ctx context.Context, id, localPath string) (FileDescriptor, error) {
	return castResult[FileDescriptor](g.execute(ctx, "update", func() (interface{}, error) {
		return g.next.UpdateFile(ctx, id, localPath)
	}))
}

// DownloadFile implements Store.
func (g *Guarded) DownloadFile(ctx context.Context, id string) ([]byte, error) {
	return castResult[[]byte](g.execute(ctx, "download", func() (interface{}, error) {
		return g.next.DownloadFile(ctx, id)
	}))
}

// DeleteFile implements Store.
func (g *Guarded) DeleteFile(ctx context.Context, id string) error {
	_, err := g.execute(ctx, "delete", func() (interface{}, error) {
		return nil, g.next.DeleteFile(ctx, id)
	})
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/tablesync/internal/backup"
)

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*ObserverService)(nil)
	_ suture.Service = (*EmbeddedNATSService)(nil)
	_ suture.Service = (*backup.Scheduler)(nil)
)

// mockHTTPServer blocks in ListenAndServe until Shutdown.
type mockHTTPServer struct {
	listenErr     error
	shutdownErr   error
	shutdownCount atomic.Int32
	started       chan struct{}
	stopCh        chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}, 1), stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdownCount.Add(1)
	close(m.stopCh)
	return m.shutdownErr
}

func TestNewHTTPServerService_DefaultTimeout(t *testing.T) {
	for _, timeout := range []time.Duration{0, -5 * time.Second} {
		svc := NewHTTPServerService(newMockHTTPServer(), timeout)
		if svc.shutdownTimeout != 10*time.Second {
			t.Errorf("timeout %v: got %v, want 10s", timeout, svc.shutdownTimeout)
		}
	}
	if got := NewHTTPServerService(newMockHTTPServer(), 0).String(); got != "http-server" {
		t.Errorf("String() = %q", got)
	}
}

func TestHTTPServerService_Serve(t *testing.T) {
	t.Run("shuts down gracefully on context cancellation", func(t *testing.T) {
		server := newMockHTTPServer()
		svc := NewHTTPServerService(server, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		<-server.started
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve returned %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return")
		}
		if server.shutdownCount.Load() != 1 {
			t.Errorf("Shutdown called %d times, want 1", server.shutdownCount.Load())
		}
	})

	t.Run("returns listen errors", func(t *testing.T) {
		server := newMockHTTPServer()
		server.listenErr = errors.New("address already in use")
		svc := NewHTTPServerService(server, time.Second)

		err := svc.Serve(context.Background())
		if err == nil || !errors.Is(err, server.listenErr) {
			t.Errorf("Serve returned %v, want wrapped listen error", err)
		}
	})

	t.Run("returns shutdown errors", func(t *testing.T) {
		server := newMockHTTPServer()
		server.shutdownErr = errors.New("drain timeout")
		svc := NewHTTPServerService(server, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()
		<-server.started
		cancel()

		if err := <-errCh; !errors.Is(err, server.shutdownErr) {
			t.Errorf("Serve returned %v, want shutdown error", err)
		}
	})
}

type mockObserver struct {
	mu       sync.Mutex
	started  int
	stopped  int
	startErr error
	callback func(backup.TableKind)
}

func (m *mockObserver) Start(cb func(backup.TableKind)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started++
	m.callback = cb
	return nil
}

func (m *mockObserver) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
}

type mockToucher struct {
	mu      sync.Mutex
	touched []backup.TableKind
	err     error
}

func (m *mockToucher) Touch(_ context.Context, table backup.TableKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, table)
	return m.err
}

func TestObserverService_Serve(t *testing.T) {
	observer := &mockObserver{}
	toucher := &mockToucher{}
	svc := NewObserverService(observer, toucher)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for {
		observer.mu.Lock()
		cb := observer.callback
		observer.mu.Unlock()
		if cb != nil {
			cb(backup.TableSample)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("observer not started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}

	if observer.stopped != 1 {
		t.Errorf("Stop called %d times, want 1", observer.stopped)
	}
	if len(toucher.touched) != 1 || toucher.touched[0] != backup.TableSample {
		t.Errorf("touched = %v, want [sample]", toucher.touched)
	}
}

func TestObserverService_StartFailure(t *testing.T) {
	observer := &mockObserver{startErr: errors.New("bus closed")}
	svc := NewObserverService(observer, &mockToucher{})
	if err := svc.Serve(context.Background()); !errors.Is(err, observer.startErr) {
		t.Errorf("Serve returned %v, want start error", err)
	}
}

func TestObserverService_TouchFailureIsLogged(t *testing.T) {
	toucher := &mockToucher{err: errors.New("settings closed")}
	svc := NewObserverService(&mockObserver{}, toucher)
	svc.onTableChanged(backup.TableSample)
	if len(toucher.touched) != 1 {
		t.Errorf("Touch called %d times, want 1", len(toucher.touched))
	}
}

type mockEmbeddedServer struct {
	running  atomic.Bool
	shutdown atomic.Int32
}

func (m *mockEmbeddedServer) Running() bool {
	return m.running.Load()
}

func (m *mockEmbeddedServer) Shutdown(context.Context) error {
	m.shutdown.Add(1)
	m.running.Store(false)
	return nil
}

func TestEmbeddedNATSService_ShutsDownWithTree(t *testing.T) {
	server := &mockEmbeddedServer{}
	server.running.Store(true)
	svc := NewEmbeddedNATSService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
	if server.shutdown.Load() != 1 {
		t.Errorf("Shutdown called %d times, want 1", server.shutdown.Load())
	}
}

func TestEmbeddedNATSService_FailsWhenServerStops(t *testing.T) {
	server := &mockEmbeddedServer{}
	svc := NewEmbeddedNATSService(server, time.Second)
	svc.checkInterval = 10 * time.Millisecond

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(context.Background()) }()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("Serve returned nil for a stopped server")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not detect the stopped server")
	}
}

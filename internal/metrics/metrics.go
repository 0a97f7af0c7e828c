// Tablesync - Backup Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesync

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backup run metrics
	BackupRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_backup_runs_total",
			Help: "Total export and import runs by operation, mode and outcome",
		},
		[]string{"operation", "mode", "outcome"}, // operation: export|import, mode: full|partial|restore|skipped|noop
	)

	BackupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablesync_backup_duration_seconds",
			Help:    "Duration of export and import runs",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	BackupFilesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_backup_files_transferred_total",
			Help: "Files transferred to or from the remote store",
		},
		[]string{"direction", "action"}, // direction: upload|download, action: create|update|read
	)

	BackupBytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_backup_bytes_transferred_total",
			Help: "Payload bytes transferred to or from the remote store",
		},
		[]string{"direction"},
	)

	BackupLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tablesync_backup_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		},
		[]string{"operation"},
	)

	// Manifest metrics
	ManifestUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_manifest_updates_total",
			Help: "Local manifest writes by reason",
		},
		[]string{"reason"}, // initialize|schema_version|table_changed|import|repair
	)

	// Observer metrics
	ObserverActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tablesync_observer_active",
			Help: "1 when the change observer is active, 0 when inactive",
		},
	)

	ObserverNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_observer_notifications_total",
			Help: "Change notifications received by the observer",
		},
		[]string{"table", "result"}, // result: delivered|initial|coalesced
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablesync_db_query_duration_seconds",
			Help:    "Duration of local database operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_db_query_errors_total",
			Help: "Failed local database operations",
		},
		[]string{"operation", "table"},
	)

	// Remote store metrics
	RemoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_remote_calls_total",
			Help: "Remote store calls by operation and outcome",
		},
		[]string{"operation", "outcome"}, // outcome: success|error|rejected
	)

	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablesync_remote_call_duration_seconds",
			Help:    "Remote store call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tablesync_remote_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_remote_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_api_requests_total",
			Help: "HTTP API requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablesync_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// RecordBackupRun records one finished export or import.
func RecordBackupRun(operation, mode string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	BackupRuns.WithLabelValues(operation, mode, outcome).Inc()
	BackupDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err == nil {
		BackupLastSuccess.WithLabelValues(operation).SetToCurrentTime()
	}
}

// RecordFileTransfer records one file moved to or from the remote store.
func RecordFileTransfer(direction, action string, bytes int) {
	BackupFilesTransferred.WithLabelValues(direction, action).Inc()
	if bytes > 0 {
		BackupBytesTransferred.WithLabelValues(direction).Add(float64(bytes))
	}
}

// RecordManifestUpdate records a persisted manifest change.
func RecordManifestUpdate(reason string) {
	ManifestUpdates.WithLabelValues(reason).Inc()
}

// SetObserverActive mirrors the observer state machine.
func SetObserverActive(active bool) {
	if active {
		ObserverActive.Set(1)
		return
	}
	ObserverActive.Set(0)
}

// RecordObserverNotification records how a change notification was handled.
func RecordObserverNotification(table, result string) {
	ObserverNotifications.WithLabelValues(table, result).Inc()
}

// RecordDBQuery records a local database operation.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordRemoteCall records a remote store call.
func RecordRemoteCall(operation, outcome string, duration time.Duration) {
	RemoteCalls.WithLabelValues(operation, outcome).Inc()
	RemoteCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCircuitBreakerTransition records a breaker state change.
func RecordCircuitBreakerTransition(name, from, to string, toValue float64) {
	CircuitBreakerState.WithLabelValues(name).Set(toValue)
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordAPIRequest records one served HTTP request. route is the matched
// pattern, not the raw path.
func RecordAPIRequest(route, method string, status int, duration time.Duration) {
	APIRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

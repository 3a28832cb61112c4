// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

// Package metrics provides Prometheus instrumentation for the TaskMesh
// real-time gateway: connection and room gauges, broadcast and bridge
// counters, and HTTP API request metrics. All collectors are registered on
// the default registry via promauto and exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway metrics

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskmesh_gateway_connections",
			Help: "Current number of open WebSocket connections",
		},
	)

	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskmesh_gateway_rooms",
			Help: "Current number of rooms with at least one member",
		},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmesh_gateway_events_total",
			Help: "Total number of dispatched client events",
		},
		[]string{"event"},
	)

	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmesh_gateway_broadcasts_total",
			Help: "Total number of room broadcasts by outbound event",
		},
		[]string{"event"},
	)

	DroppedWritesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskmesh_gateway_dropped_writes_total",
			Help: "Total number of failed connection writes during fan-out",
		},
	)

	HandshakeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskmesh_gateway_handshake_failures_total",
			Help: "Total number of rejected WebSocket handshakes",
		},
	)

	FrameErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskmesh_gateway_frame_errors_total",
			Help: "Total number of corrupt or unmasked frames",
		},
	)

	// Notification bridge metrics

	BridgeEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskmesh_bridge_enqueued_total",
			Help: "Total number of notifications enqueued onto the bridge",
		},
	)

	BridgeDrainedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskmesh_bridge_drained_total",
			Help: "Total number of notifications drained from the bridge",
		},
	)

	BridgeDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskmesh_bridge_delivered_total",
			Help: "Total number of drained notifications pushed to at least one connection",
		},
	)

	BridgeDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskmesh_bridge_depth",
			Help: "Notifications in the queue file at last observation",
		},
	)

	BridgeLockTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskmesh_bridge_lock_timeouts_total",
			Help: "Total number of advisory lock acquisition timeouts",
		},
	)

	// HTTP API metrics

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskmesh_api_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmesh_api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskmesh_api_active_requests",
			Help: "Current number of in-flight HTTP API requests",
		},
	)
)

// RecordAPIRequest records one completed HTTP API request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	APIRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

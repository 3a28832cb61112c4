// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

// Package gateway implements the TaskMesh real-time event delivery layer:
// a single-goroutine event loop that accepts raw TCP connections, promotes
// them through the WebSocket handshake, maintains per-team rooms, dispatches
// client events, and drains the notification bridge on every tick.
//
// # Scheduling model
//
// One goroutine owns the listener and every open connection. Each loop
// iteration polls the listener and every connection descriptor for
// readiness, waiting at most one tick (tens of milliseconds) so the bridge
// is drained at a steady cadence even with no client traffic. Only ready
// sockets are read, so a silent connection never blocks the loop. No other
// goroutine touches the Registry or Rooms, so neither needs a lock.
//
// # Connection lifecycle
//
// connecting -> open -> closed, terminal. Ids are monotonically increasing
// and never reused. An empty or failed read is the normal end of life, not
// an error: the connection is removed from the registry and purged from
// every room it joined.
//
// A slow or idle client is never evicted; there is no ping/pong keepalive.
// Dead peers are detected on the next failed read or write.
// TODO: add idle eviction once the web client answers server pings.
//
// # Single-read framing limits
//
// Each ready connection gets exactly one read per tick, into a buffer of
// ReadBufferSize bytes, and that read is decoded as one unit. Two limits
// follow. A client frame whose header plus payload exceeds ReadBufferSize
// arrives truncated, fails to decode, and drops the connection; clients
// must keep individual messages under the buffer size (the web client's
// chat payloads are a few hundred bytes). Likewise the upgrade request is
// parsed from the first segment read, so a handshake whose headers are
// split across TCP segments is rejected. Frames from a client writing
// faster than the tick can also coalesce into one read, of which only the
// first is decoded. Reads are not buffered across ticks.
package gateway

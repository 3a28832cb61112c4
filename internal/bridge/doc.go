// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

// Package bridge implements the durable notification queue connecting
// short-lived HTTP workers to the long-running gateway event loop.
//
// The two halves share no process memory and no message broker; the only
// shared resource is a JSON queue file. Producers append with Enqueue and
// return immediately; the event loop empties the file with DrainAll on every
// tick. An OS advisory lock (a sidecar .lock file) is held across the entire
// read+mutate+write cycle on both sides, which is the one piece of explicit
// synchronization in the system: registry and room state never leave the
// event-loop goroutine, but this file is written by arbitrarily many
// unrelated processes.
//
// Delivery semantics are at-most-once. DrainAll atomically returns and
// empties the queue in a single lock scope, so a consumer crash between
// drain and fan-out loses at most the items already drained; items whose
// target user has no open connection are discarded, not requeued. The
// authoritative notification record lives in the application database, so a
// missed push only costs the live update, never the notification itself.
package bridge

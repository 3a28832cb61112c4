// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package gateway

import (
	"net"
	"slices"
	"syscall"

	"github.com/taskmesh/taskmesh/internal/metrics"
)

// ConnID identifies one accepted connection. Ids are assigned from a
// monotonically increasing counter and never reused, so a ConnID observed
// after removal can safely be treated as dead.
type ConnID uint64

// ConnState tracks the per-connection protocol state machine.
type ConnState int

const (
	// StateConnecting is the span between accept and a completed
	// WebSocket handshake. Bytes read in this state go to the handshake
	// negotiator, not the frame codec.
	StateConnecting ConnState = iota

	// StateOpen means the handshake completed and frames flow.
	StateOpen

	// StateClosed is terminal.
	StateClosed
)

// Conn is the registry's record of one accepted socket: the raw handle, the
// handshake state, the optional authenticated identity, and the rooms the
// connection currently belongs to. Only the event-loop goroutine touches it.
type Conn struct {
	id     ConnID
	sock   net.Conn
	fd     int // raw descriptor for readiness polling; -1 when unavailable
	state  ConnState
	userID int64 // 0 until authenticated
	rooms  map[string]struct{}
}

// ID returns the connection identifier.
func (c *Conn) ID() ConnID { return c.id }

// UserID returns the authenticated user id, or 0.
func (c *Conn) UserID() int64 { return c.userID }

// State returns the connection state.
func (c *Conn) State() ConnState { return c.state }

// Registry tracks every open connection. It is owned exclusively by the
// event-loop goroutine and therefore has no internal locking; it is the
// single source of truth for "is user X currently connected".
type Registry struct {
	nextID uint64
	conns  map[ConnID]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[ConnID]*Conn)}
}

// syscallConner is satisfied by *net.TCPConn and friends.
type syscallConner interface {
	SyscallConn() (syscall.RawConn, error)
}

// Add registers a freshly accepted socket and returns its connection record
// in the connecting state.
func (r *Registry) Add(sock net.Conn) *Conn {
	r.nextID++
	c := &Conn{
		id:    ConnID(r.nextID),
		sock:  sock,
		fd:    rawFD(sock),
		state: StateConnecting,
		rooms: make(map[string]struct{}),
	}
	r.conns[c.id] = c
	metrics.ActiveConnections.Set(float64(len(r.conns)))
	return c
}

// rawFD extracts the socket's file descriptor for readiness polling.
// Returns -1 for connection types without one (in-memory pipes in tests);
// such connections are simply never reported ready.
func rawFD(sock net.Conn) int {
	sc, ok := sock.(syscallConner)
	if !ok {
		return -1
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}
	fd := -1
	_ = raw.Control(func(f uintptr) { fd = int(f) })
	return fd
}

// Get looks up a connection by id.
func (r *Registry) Get(id ConnID) (*Conn, bool) {
	c, ok := r.conns[id]
	return c, ok
}

// Remove deletes the connection and marks it closed, returning the record so
// the caller can purge its room memberships and close the socket. Returns
// nil if the id is unknown (already removed).
func (r *Registry) Remove(id ConnID) *Conn {
	c, ok := r.conns[id]
	if !ok {
		return nil
	}
	delete(r.conns, id)
	c.state = StateClosed
	metrics.ActiveConnections.Set(float64(len(r.conns)))
	return c
}

// SetIdentity binds an authenticated user id to the connection.
func (r *Registry) SetIdentity(id ConnID, userID int64) {
	if c, ok := r.conns[id]; ok {
		c.userID = userID
	}
}

// ConnectionsForUser returns the ids of every open connection bound to the
// given user, in ascending id order.
func (r *Registry) ConnectionsForUser(userID int64) []ConnID {
	if userID == 0 {
		return nil
	}
	var ids []ConnID
	for id, c := range r.conns {
		if c.userID == userID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of open connections.
func (r *Registry) Len() int { return len(r.conns) }

// all returns every connection id in ascending order. Iteration over the
// conns map is randomized; the loop reads connections in a stable order.
func (r *Registry) all() []ConnID {
	ids := make([]ConnID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

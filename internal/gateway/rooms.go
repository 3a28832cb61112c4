// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package gateway

import (
	"slices"

	"github.com/taskmesh/taskmesh/internal/metrics"
)

// Rooms maintains the team-id to member-connections mapping used for
// fan-out broadcast. Rooms are ephemeral: created on first join, dropped
// when the last member leaves, never persisted. Like the Registry, Rooms is
// owned by the event-loop goroutine and has no locking.
//
// Membership has no server-enforced relationship to team authorization; any
// identified connection may name any room id. Authorization happens in the
// CRUD API before the client ever sends joinTeam.
type Rooms struct {
	rooms map[string]map[ConnID]struct{}
}

// NewRooms creates an empty room table.
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]map[ConnID]struct{})}
}

// Join adds the connection to the room, creating the room on first join.
func (r *Rooms) Join(roomID string, id ConnID) {
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[ConnID]struct{})
		r.rooms[roomID] = members
	}
	members[id] = struct{}{}
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
}

// Leave removes the connection from the room, dropping the room when empty.
func (r *Rooms) Leave(roomID string, id ConnID) {
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
}

// DropConn removes the connection from every room in memberOf. Called when
// a connection is removed from the registry.
func (r *Rooms) DropConn(id ConnID, memberOf map[string]struct{}) {
	for roomID := range memberOf {
		r.Leave(roomID, id)
	}
}

// Members returns the room's member ids in ascending order, or nil for an
// unknown room.
func (r *Rooms) Members(roomID string) []ConnID {
	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]ConnID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of non-empty rooms.
func (r *Rooms) Len() int { return len(r.rooms) }

// Broadcast writes the already-encoded frame to every member of the room
// except exclude (0 excludes nobody), using the caller-supplied write
// function. The frame is encoded once by the caller, not per member.
//
// A write failure on one member never aborts delivery to the rest; the ids
// that failed are returned so the event loop can schedule their removal.
// Members are visited in ascending id order.
func (r *Rooms) Broadcast(roomID string, frame []byte, exclude ConnID, write func(ConnID, []byte) error) []ConnID {
	var failed []ConnID
	for _, id := range r.Members(roomID) {
		if id == exclude {
			continue
		}
		if err := write(id, frame); err != nil {
			metrics.DroppedWritesTotal.Inc()
			failed = append(failed, id)
		}
	}
	return failed
}

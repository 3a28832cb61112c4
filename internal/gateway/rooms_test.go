// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package gateway

import (
	"errors"
	"slices"
	"testing"
)

func TestRoomsJoinLeave(t *testing.T) {
	r := NewRooms()

	r.Join("42", 1)
	r.Join("42", 2)
	r.Join("7", 2)

	if got := r.Members("42"); !slices.Equal(got, []ConnID{1, 2}) {
		t.Errorf("Members(42) = %v, want [1 2]", got)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}

	r.Leave("42", 1)
	if got := r.Members("42"); !slices.Equal(got, []ConnID{2}) {
		t.Errorf("Members(42) after leave = %v, want [2]", got)
	}

	// Last member leaving drops the room.
	r.Leave("42", 2)
	if got := r.Members("42"); got != nil {
		t.Errorf("Members(42) on empty room = %v, want nil", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	// Leaving an unknown room is a no-op.
	r.Leave("unknown", 2)
}

func TestRoomsDropConn(t *testing.T) {
	r := NewRooms()
	r.Join("a", 1)
	r.Join("b", 1)
	r.Join("b", 2)

	r.DropConn(1, map[string]struct{}{"a": {}, "b": {}})

	if got := r.Members("a"); got != nil {
		t.Errorf("Members(a) = %v, want nil", got)
	}
	if got := r.Members("b"); !slices.Equal(got, []ConnID{2}) {
		t.Errorf("Members(b) = %v, want [2]", got)
	}
}

// recordingWriter captures broadcast fan-out, optionally failing some ids.
type recordingWriter struct {
	wrote []ConnID
	fail  map[ConnID]bool
}

func (w *recordingWriter) write(id ConnID, _ []byte) error {
	if w.fail[id] {
		return errors.New("broken pipe")
	}
	w.wrote = append(w.wrote, id)
	return nil
}

func TestBroadcastRoomIsolation(t *testing.T) {
	r := NewRooms()
	r.Join("a", 1)
	r.Join("a", 2)
	r.Join("b", 3)

	w := &recordingWriter{}
	r.Broadcast("a", []byte("frame"), 0, w.write)

	if !slices.Equal(w.wrote, []ConnID{1, 2}) {
		t.Errorf("broadcast to room a reached %v, want [1 2]", w.wrote)
	}
	if slices.Contains(w.wrote, 3) {
		t.Error("broadcast leaked into room b")
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := NewRooms()
	r.Join("42", 1)
	r.Join("42", 2)
	r.Join("42", 3)

	w := &recordingWriter{}
	r.Broadcast("42", []byte("typing"), 2, w.write)

	if slices.Contains(w.wrote, 2) {
		t.Error("broadcast echoed back to excluded sender")
	}
	if !slices.Equal(w.wrote, []ConnID{1, 3}) {
		t.Errorf("broadcast reached %v, want [1 3]", w.wrote)
	}
}

func TestBroadcastContinuesPastFailedWrite(t *testing.T) {
	r := NewRooms()
	r.Join("42", 1)
	r.Join("42", 2)
	r.Join("42", 3)

	w := &recordingWriter{fail: map[ConnID]bool{2: true}}
	failed := r.Broadcast("42", []byte("msg"), 0, w.write)

	// The failure on 2 must not abort delivery to 3.
	if !slices.Equal(w.wrote, []ConnID{1, 3}) {
		t.Errorf("broadcast reached %v, want [1 3]", w.wrote)
	}
	if !slices.Equal(failed, []ConnID{2}) {
		t.Errorf("failed = %v, want [2]", failed)
	}
}

func TestBroadcastUnknownRoom(t *testing.T) {
	r := NewRooms()
	w := &recordingWriter{}
	if failed := r.Broadcast("nope", []byte("x"), 0, w.write); failed != nil {
		t.Errorf("failed = %v, want nil", failed)
	}
	if len(w.wrote) != 0 {
		t.Errorf("broadcast to unknown room reached %v", w.wrote)
	}
}

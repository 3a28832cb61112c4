// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package store

import (
	"context"
	"sync"
	"time"
)

// Sender holds the profile fields used to enrich a persisted message.
type Sender struct {
	FirstName string
	LastName  string
	Avatar    string
}

// MemoryStore is an in-memory MessageStore used by tests and by development
// setups without a database. Messages are retained in insertion order.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	senders map[int64]Sender
	msgs    []*ChatMessage
}

// NewMemoryStore creates an empty store with the given known senders.
func NewMemoryStore(senders map[int64]Sender) *MemoryStore {
	if senders == nil {
		senders = make(map[int64]Sender)
	}
	return &MemoryStore{nextID: 1, senders: senders}
}

// PersistMessage records the message and enriches it from the sender table.
// Unknown senders still persist; their profile fields stay empty, matching
// a row join against a deleted user.
func (s *MemoryStore) PersistMessage(_ context.Context, teamID, userID int64, content string) (*ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender := s.senders[userID]
	msg := &ChatMessage{
		ID:        s.nextID,
		TeamID:    teamID,
		UserID:    userID,
		Content:   content,
		FirstName: sender.FirstName,
		LastName:  sender.LastName,
		Avatar:    sender.Avatar,
		CreatedAt: time.Now().Format(TimeFormat),
	}
	s.nextID++
	s.msgs = append(s.msgs, msg)
	return msg, nil
}

// Messages returns a snapshot of everything persisted so far.
func (s *MemoryStore) Messages() []*ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ChatMessage, len(s.msgs))
	copy(out, s.msgs)
	return out
}

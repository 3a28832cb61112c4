// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

// Package store persists team chat messages and returns the enriched record
// the gateway broadcasts to a room.
//
// The gateway consumes only the MessageStore interface. The production
// implementation writes to Postgres; an in-memory implementation backs
// tests, and a circuit-breaker wrapper shields the event loop from a
// flapping database.
package store

import (
	"context"
)

// TimeFormat is the created_at wire format expected by the web client.
const TimeFormat = "2006-01-02 15:04:05"

// ChatMessage is the enriched record produced by persisting a message:
// the stored row plus the sender fields the client renders.
type ChatMessage struct {
	ID        int64  `json:"id"`
	TeamID    int64  `json:"team_id"`
	UserID    int64  `json:"user_id"`
	Content   string `json:"content"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar,omitempty"`
	CreatedAt string `json:"created_at"`
}

// MessageStore persists one chat message and returns the enriched record.
type MessageStore interface {
	PersistMessage(ctx context.Context, teamID, userID int64, content string) (*ChatMessage, error)
}

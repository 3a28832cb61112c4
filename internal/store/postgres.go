// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements MessageStore over the TaskMesh application
// database. The schema (messages, users) is owned by the CRUD API; the
// gateway only ever executes these two statements.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pgx pool to the given DSN and verifies the
// connection with a ping.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// PersistMessage inserts the message row and returns it enriched with the
// sender's profile fields.
func (s *PostgresStore) PersistMessage(ctx context.Context, teamID, userID int64, content string) (*ChatMessage, error) {
	msg := &ChatMessage{
		TeamID:  teamID,
		UserID:  userID,
		Content: content,
	}

	var createdAt time.Time
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (team_id, user_id, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		teamID, userID, content,
	).Scan(&msg.ID, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("store: insert message: %w", err)
	}
	msg.CreatedAt = createdAt.Format(TimeFormat)

	err = s.pool.QueryRow(ctx,
		`SELECT first_name, last_name, COALESCE(avatar, '')
		 FROM users WHERE id = $1`,
		userID,
	).Scan(&msg.FirstName, &msg.LastName, &msg.Avatar)
	if err != nil {
		return nil, fmt.Errorf("store: load sender %d: %w", userID, err)
	}

	return msg, nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

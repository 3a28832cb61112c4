// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package store

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/taskmesh/taskmesh/internal/logging"
)

// BreakerConfig tunes the circuit breaker around a MessageStore.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker. Default: 5
	FailureThreshold uint32

	// Timeout is how long the breaker stays open before probing again.
	// Default: 30s
	Timeout time.Duration
}

// BreakerStore wraps a MessageStore with a circuit breaker. While the
// breaker is open, PersistMessage fails fast; the event loop drops the
// sendMessage event exactly as it would for any other storage failure, so a
// flapping database cannot stall the single-threaded loop on every chat
// message.
type BreakerStore struct {
	inner MessageStore
	cb    *gobreaker.CircuitBreaker[*ChatMessage]
}

// NewBreakerStore wraps the given store.
func NewBreakerStore(inner MessageStore, cfg BreakerConfig) *BreakerStore {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "message-store",
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("message store circuit breaker state change")
		},
	}

	return &BreakerStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[*ChatMessage](settings),
	}
}

// PersistMessage delegates to the wrapped store under breaker protection.
func (s *BreakerStore) PersistMessage(ctx context.Context, teamID, userID int64, content string) (*ChatMessage, error) {
	return s.cb.Execute(func() (*ChatMessage, error) {
		return s.inner.PersistMessage(ctx, teamID, userID, content)
	})
}

// State reports the breaker state for health endpoints.
func (s *BreakerStore) State() string {
	return s.cb.State().String()
}

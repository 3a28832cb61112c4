// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/taskmesh/taskmesh/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

func TestMemoryStorePersistMessage(t *testing.T) {
	s := NewMemoryStore(map[int64]Sender{
		7: {FirstName: "Maria", LastName: "Papadi", Avatar: "m.png"},
	})

	msg, err := s.PersistMessage(context.Background(), 42, 7, "hi")
	if err != nil {
		t.Fatalf("PersistMessage: %v", err)
	}

	if msg.ID != 1 {
		t.Errorf("ID = %d, want 1", msg.ID)
	}
	if msg.TeamID != 42 || msg.UserID != 7 || msg.Content != "hi" {
		t.Errorf("row fields = %+v", msg)
	}
	if msg.FirstName != "Maria" || msg.LastName != "Papadi" || msg.Avatar != "m.png" {
		t.Errorf("enriched sender fields = %+v", msg)
	}
	if _, err := time.Parse(TimeFormat, msg.CreatedAt); err != nil {
		t.Errorf("CreatedAt %q not in wire format: %v", msg.CreatedAt, err)
	}

	second, _ := s.PersistMessage(context.Background(), 42, 7, "again")
	if second.ID != 2 {
		t.Errorf("second ID = %d, want 2", second.ID)
	}
}

// failingStore always errors; used to trip the breaker.
type failingStore struct{ calls int }

func (f *failingStore) PersistMessage(context.Context, int64, int64, string) (*ChatMessage, error) {
	f.calls++
	return nil, errors.New("database down")
}

func TestBreakerStoreOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingStore{}
	s := NewBreakerStore(inner, BreakerConfig{FailureThreshold: 3, Timeout: time.Minute})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.PersistMessage(ctx, 1, 1, "x"); err == nil {
			t.Fatal("expected failure")
		}
	}

	// Breaker now open: calls fail fast without reaching the store.
	before := inner.calls
	_, err := s.PersistMessage(ctx, 1, 1, "x")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("error = %v, want ErrOpenState", err)
	}
	if inner.calls != before {
		t.Error("open breaker still reached the store")
	}
	if s.State() != gobreaker.StateOpen.String() {
		t.Errorf("State() = %q, want open", s.State())
	}
}

func TestBreakerStorePassesThroughSuccess(t *testing.T) {
	inner := NewMemoryStore(map[int64]Sender{1: {FirstName: "A", LastName: "B"}})
	s := NewBreakerStore(inner, BreakerConfig{})

	msg, err := s.PersistMessage(context.Background(), 9, 1, "ok")
	if err != nil {
		t.Fatalf("PersistMessage: %v", err)
	}
	if msg.Content != "ok" || msg.FirstName != "A" {
		t.Errorf("msg = %+v", msg)
	}
}

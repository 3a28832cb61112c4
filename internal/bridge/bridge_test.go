// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package bridge

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/taskmesh/taskmesh/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := New(Config{
		Path:           filepath.Join(t.TempDir(), "notification_queue.json"),
		LockTimeout:    time.Second,
		LockRetryDelay: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q
}

func payload(title string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"title":%q,"body":"b"}`, title))
}

func TestEnqueueDrainOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i, title := range []string{"n1", "n2", "n3"} {
		if err := q.Enqueue(ctx, int64(i+1), payload(title)); err != nil {
			t.Fatalf("Enqueue %s: %v", title, err)
		}
	}

	items, err := q.DrainAll(ctx)
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("drained %d items, want 3", len(items))
	}
	for i, want := range []string{"n1", "n2", "n3"} {
		var p struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(items[i].Payload, &p); err != nil {
			t.Fatalf("decode item %d: %v", i, err)
		}
		if p.Title != want {
			t.Errorf("item %d title = %q, want %q (FIFO order)", i, p.Title, want)
		}
		if items[i].UserID != int64(i+1) {
			t.Errorf("item %d user = %d, want %d", i, items[i].UserID, i+1)
		}
	}
}

func TestDrainEmptiesQueue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, 7, payload("once")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if items, err := q.DrainAll(ctx); err != nil || len(items) != 1 {
		t.Fatalf("first drain = %d items, err %v; want 1, nil", len(items), err)
	}

	// The immediately following drain must observe an empty queue.
	items, err := q.DrainAll(ctx)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("second drain returned %d items, want 0", len(items))
	}
}

func TestDrainAllMissingFile(t *testing.T) {
	q := newTestQueue(t)

	items, err := q.DrainAll(context.Background())
	if err != nil {
		t.Fatalf("DrainAll on missing file: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items from missing file, want 0", len(items))
	}
}

func TestDepth(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := q.Enqueue(ctx, 1, payload("d")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 4 {
		t.Errorf("Depth = %d, want 4", depth)
	}

	// Depth must not consume.
	if items, _ := q.DrainAll(ctx); len(items) != 4 {
		t.Errorf("drain after Depth = %d items, want 4", len(items))
	}
}

func TestConcurrentEnqueue(t *testing.T) {
	// Separate Queue values simulate separate producer processes: the only
	// shared state is the file and its advisory lock.
	q := newTestQueue(t)
	ctx := context.Background()

	const producers = 8
	const perProducer = 10

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			other, err := New(Config{
				Path:           q.path,
				LockTimeout:    5 * time.Second,
				LockRetryDelay: time.Millisecond,
			})
			if err != nil {
				t.Errorf("producer %d: New: %v", producer, err)
				return
			}
			for i := 0; i < perProducer; i++ {
				if err := other.Enqueue(ctx, int64(producer), payload("c")); err != nil {
					t.Errorf("producer %d: Enqueue: %v", producer, err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	items, err := q.DrainAll(ctx)
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if len(items) != producers*perProducer {
		t.Errorf("drained %d items, want %d (lost writes under contention)",
			len(items), producers*perProducer)
	}
}

func TestEnqueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.json")
	ctx := context.Background()

	q1, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := q1.Enqueue(ctx, 42, payload("durable")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// A fresh Queue over the same file sees the item: durability across
	// process restarts.
	q2, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New(reopen): %v", err)
	}
	items, err := q2.DrainAll(ctx)
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if len(items) != 1 || items[0].UserID != 42 {
		t.Errorf("reopened queue = %+v, want one item for user 42", items)
	}
	if items[0].EnqueuedAt == 0 {
		t.Error("EnqueuedAt not set")
	}
}

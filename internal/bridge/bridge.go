// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"github.com/taskmesh/taskmesh/internal/metrics"
)

// ErrLockTimeout is returned when the advisory lock cannot be acquired
// within the configured timeout. Producers must treat this as retryable:
// losing a notification write is acceptable only under sustained contention,
// never as a silent race.
var ErrLockTimeout = errors.New("bridge: queue lock acquisition timed out")

// Item is one queued notification record.
type Item struct {
	// UserID is the target user.
	UserID int64 `json:"user_id"`

	// Payload is the opaque notification body (title, body, url, icon,
	// data). Its shape is owned by the producer API, not the bridge.
	Payload json.RawMessage `json:"notification"`

	// EnqueuedAt is the enqueue time as a Unix timestamp.
	EnqueuedAt int64 `json:"timestamp"`
}

// Config holds queue configuration.
type Config struct {
	// Path is the queue file location. The advisory lock is taken on a
	// sidecar file at Path + ".lock" so the data file itself can be
	// atomically replaced while the lock is held.
	Path string

	// LockTimeout bounds how long Enqueue and DrainAll wait for the lock.
	// Default: 2s
	LockTimeout time.Duration

	// LockRetryDelay is the polling interval while waiting for the lock.
	// Default: 25ms
	LockRetryDelay time.Duration
}

// Queue is a crash-tolerant, file-backed FIFO shared between producer
// processes and the single event-loop consumer.
type Queue struct {
	path       string
	fl         *flock.Flock
	timeout    time.Duration
	retryDelay time.Duration
}

// New creates a Queue over the configured file, creating the parent
// directory if needed.
func New(cfg Config) (*Queue, error) {
	if cfg.Path == "" {
		return nil, errors.New("bridge: queue path is required")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 2 * time.Second
	}
	if cfg.LockRetryDelay <= 0 {
		cfg.LockRetryDelay = 25 * time.Millisecond
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("bridge: create queue directory: %w", err)
	}

	return &Queue{
		path:       cfg.Path,
		fl:         flock.New(cfg.Path + ".lock"),
		timeout:    cfg.LockTimeout,
		retryDelay: cfg.LockRetryDelay,
	}, nil
}

// Enqueue appends one notification for the given user. Called by unrelated
// OS processes concurrently; the full read+append+write cycle runs under the
// exclusive advisory lock.
func (q *Queue) Enqueue(ctx context.Context, userID int64, payload json.RawMessage) error {
	err := q.withLock(ctx, func() error {
		items, err := q.load()
		if err != nil {
			return err
		}

		items = append(items, Item{
			UserID:     userID,
			Payload:    payload,
			EnqueuedAt: time.Now().Unix(),
		})

		if err := q.store(items); err != nil {
			return err
		}
		metrics.BridgeDepth.Set(float64(len(items)))
		return nil
	})
	if err != nil {
		return err
	}

	metrics.BridgeEnqueuedTotal.Inc()
	return nil
}

// DrainAll atomically returns every queued item in FIFO order and empties
// the queue in the same lock scope. A consumer crash after DrainAll returns
// loses at most the drained items (at-most-once semantics).
func (q *Queue) DrainAll(ctx context.Context) ([]Item, error) {
	var items []Item
	err := q.withLock(ctx, func() error {
		var err error
		items, err = q.load()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		if err := q.store(nil); err != nil {
			return err
		}
		metrics.BridgeDepth.Set(0)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.BridgeDrainedTotal.Add(float64(len(items)))
	return items, nil
}

// Depth reports the number of queued items without consuming them.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var depth int
	err := q.withLock(ctx, func() error {
		items, err := q.load()
		if err != nil {
			return err
		}
		depth = len(items)
		metrics.BridgeDepth.Set(float64(depth))
		return nil
	})
	return depth, err
}

// withLock runs fn while holding the exclusive advisory lock, waiting up to
// the configured timeout.
func (q *Queue) withLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	locked, err := q.fl.TryLockContext(lockCtx, q.retryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("bridge: acquire queue lock: %w", err)
	}
	if !locked {
		metrics.BridgeLockTimeoutsTotal.Inc()
		return ErrLockTimeout
	}
	defer func() { _ = q.fl.Unlock() }()

	return fn()
}

// load reads the queue file. A missing or empty file is an empty queue.
func (q *Queue) load() ([]Item, error) {
	raw, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bridge: read queue file: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("bridge: decode queue file: %w", err)
	}
	return items, nil
}

// store rewrites the queue file wholesale via temp-file-and-rename so a
// crash mid-write never leaves a half-written queue behind.
func (q *Queue) store(items []Item) error {
	if items == nil {
		items = []Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("bridge: encode queue: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(q.path), ".queue-*")
	if err != nil {
		return fmt.Errorf("bridge: create temp queue file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("bridge: write temp queue file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("bridge: sync temp queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("bridge: close temp queue file: %w", err)
	}

	if err := os.Rename(tmpName, q.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("bridge: replace queue file: %w", err)
	}
	return nil
}

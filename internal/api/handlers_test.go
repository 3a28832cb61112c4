// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/taskmesh/taskmesh/internal/auth"
	"github.com/taskmesh/taskmesh/internal/bridge"
	"github.com/taskmesh/taskmesh/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

const testSecret = "api-test-secret-0123456789abcdef"

func newTestRouter(t *testing.T) (*bridge.Queue, http.Handler) {
	t.Helper()
	queue, err := bridge.New(bridge.Config{
		Path: filepath.Join(t.TempDir(), "queue.json"),
	})
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	router := NewRouter(RouterConfig{
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
	}, queue, auth.NewJWTResolver(testSecret))
	return queue, router.Setup()
}

func serviceToken(t *testing.T) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{"user_id": 1}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func postSend(t *testing.T, h http.Handler, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/send", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSendNotification(t *testing.T) {
	queue, h := newTestRouter(t)

	body := `{"user_id":8,"title":"Task assigned","body":"Review the board","url":"/tasks/5"}`
	rec := postSend(t, h, serviceToken(t), body)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	items, err := queue.DrainAll(context.Background())
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queued items = %d, want 1", len(items))
	}
	if items[0].UserID != 8 {
		t.Errorf("UserID = %d, want 8", items[0].UserID)
	}

	var payload struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(items[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Title != "Task assigned" || payload.URL != "/tasks/5" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestSendNotificationValidation(t *testing.T) {
	_, h := newTestRouter(t)
	token := serviceToken(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing user_id", `{"title":"x"}`, http.StatusUnprocessableEntity},
		{"zero user_id", `{"user_id":0,"title":"x"}`, http.StatusUnprocessableEntity},
		{"missing title", `{"user_id":8}`, http.StatusUnprocessableEntity},
		{"malformed body", `{user_id:}`, http.StatusBadRequest},
		{"title too long", `{"user_id":8,"title":"` + strings.Repeat("a", 201) + `"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postSend(t, h, token, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestSendNotificationRequiresAuth(t *testing.T) {
	_, h := newTestRouter(t)

	rec := postSend(t, h, "", `{"user_id":8,"title":"x"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestQueueDepth(t *testing.T) {
	queue, h := newTestRouter(t)
	token := serviceToken(t)

	for i := 0; i < 3; i++ {
		if err := queue.Enqueue(context.Background(), 8, json.RawMessage(`{"title":"x"}`)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/notifications/queue", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Depth int `json:"depth"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Depth != 3 {
		t.Errorf("depth = %d, want 3", resp.Depth)
	}
}

func TestHealthz(t *testing.T) {
	_, h := newTestRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "taskmesh_") {
		t.Error("metrics output missing taskmesh_ series")
	}
}

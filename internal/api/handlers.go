// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/taskmesh/taskmesh/internal/bridge"
	"github.com/taskmesh/taskmesh/internal/logging"
	"github.com/taskmesh/taskmesh/internal/middleware"
)

// Handler serves the producer-facing notification endpoints. Producers
// are trusted backend processes (the task tracker's web tier) that push
// notifications through the shared queue for delivery over WebSocket.
type Handler struct {
	queue    *bridge.Queue
	validate *validator.Validate
}

// NewHandler creates a Handler backed by the given notification queue.
func NewHandler(queue *bridge.Queue) *Handler {
	return &Handler{
		queue:    queue,
		validate: validator.New(),
	}
}

// sendRequest is the POST /api/notifications/send body.
type sendRequest struct {
	UserID int64           `json:"user_id" validate:"required,gt=0"`
	Title  string          `json:"title" validate:"required,max=200"`
	Body   string          `json:"body" validate:"max=2000"`
	URL    string          `json:"url" validate:"omitempty,max=2000"`
	Icon   string          `json:"icon" validate:"omitempty,max=500"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// notificationPayload is what reaches the recipient's browser. The
// user_id is routing information and is not repeated inside the payload.
type notificationPayload struct {
	Title string          `json:"title"`
	Body  string          `json:"body,omitempty"`
	URL   string          `json:"url,omitempty"`
	Icon  string          `json:"icon,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendNotification enqueues a notification for a user. Delivery happens
// asynchronously on the gateway's next tick, so success means queued,
// not delivered.
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return
	}

	payload, err := json.Marshal(notificationPayload{
		Title: req.Title,
		Body:  req.Body,
		URL:   req.URL,
		Icon:  req.Icon,
		Data:  req.Data,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode notification")
		return
	}

	if err := h.queue.Enqueue(r.Context(), req.UserID, payload); err != nil {
		if errors.Is(err, bridge.ErrLockTimeout) {
			logging.Ctx(r.Context()).Warn().
				Int64("user_id", req.UserID).
				Msg("Notification rejected, queue lock contended")
			writeError(w, http.StatusServiceUnavailable, "notification queue busy, retry later")
			return
		}
		logging.Ctx(r.Context()).Error().
			Err(err).
			Int64("user_id", req.UserID).
			Msg("Failed to enqueue notification")
		writeError(w, http.StatusInternalServerError, "failed to enqueue notification")
		return
	}

	logging.Ctx(r.Context()).Info().
		Int64("user_id", req.UserID).
		Int64("sender_id", middleware.UserIDFromContext(r.Context())).
		Msg("Notification queued")

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued":  true,
		"user_id": req.UserID,
	})
}

// QueueDepth reports how many notifications are waiting for delivery.
func (h *Handler) QueueDepth(w http.ResponseWriter, r *http.Request) {
	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		if errors.Is(err, bridge.ErrLockTimeout) {
			writeError(w, http.StatusServiceUnavailable, "notification queue busy, retry later")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"depth": depth})
}

// Healthz is the liveness endpoint.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// validationMessage turns the first validation failure into a client
// facing message without leaking struct internals.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return "invalid field " + e.Field() + " (rule " + e.Tag() + ")"
	}
	return "invalid request"
}

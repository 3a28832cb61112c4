// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/taskmesh/taskmesh/internal/auth"
	"github.com/taskmesh/taskmesh/internal/logging"
)

const userIDKey contextKey = "user_id"

// Authenticator validates Bearer tokens on producer API requests and
// stores the resolved user ID in the request context.
type Authenticator struct {
	resolver auth.TokenResolver
}

// NewAuthenticator creates an Authenticator. The resolver may be nil,
// in which case every request is rejected.
func NewAuthenticator(resolver auth.TokenResolver) *Authenticator {
	return &Authenticator{resolver: resolver}
}

// Authenticate rejects requests without a valid Bearer token.
func (a *Authenticator) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			unauthorized(w, "missing bearer token")
			return
		}
		if a.resolver == nil {
			unauthorized(w, "authentication not configured")
			return
		}

		userID, err := a.resolver.ResolveToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Warn().
				Err(err).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rejected API request with invalid token")
			unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	}
}

// UserIDFromContext returns the authenticated user ID, or 0 when the
// request was not authenticated.
func UserIDFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(userIDKey).(int64); ok {
		return id
	}
	return 0
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return header[len(prefix):]
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

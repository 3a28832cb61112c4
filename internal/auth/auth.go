// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

// Package auth resolves bearer tokens to user identities.
//
// The gateway consumes only the TokenResolver interface; the default
// implementation validates the HS256 JWTs issued by the TaskMesh login API,
// which carry the user id in a user_id claim.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail validation or carry no
// usable identity. Callers treating pre-authentication as best-effort (the
// handshake) downgrade to unauthenticated instead of failing.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenResolver resolves a bearer token to an authenticated user id.
type TokenResolver interface {
	ResolveToken(token string) (int64, error)
}

// JWTResolver validates HS256-signed JWTs carrying a user_id claim.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver creates a resolver for tokens signed with the given secret.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// ResolveToken validates the token signature and expiry and returns the
// user_id claim.
func (r *JWTResolver) ResolveToken(token string) (int64, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}

	// JSON numbers decode as float64; tolerate string ids from older
	// token issuers.
	switch id := claims["user_id"].(type) {
	case float64:
		return int64(id), nil
	case string:
		var n int64
		if _, err := fmt.Sscanf(id, "%d", &n); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
}

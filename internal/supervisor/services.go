// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/taskmesh/taskmesh/internal/logging"
)

// HTTPService wraps an http.Server as a supervised service. Serve
// blocks until the context is canceled, then shuts the server down
// gracefully within the given timeout.
type HTTPService struct {
	name            string
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewHTTPService creates an HTTP service wrapper.
func NewHTTPService(name string, server *http.Server, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{
		name:            name,
		server:          server,
		shutdownTimeout: shutdownTimeout,
	}
}

// Serve implements suture.Service.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	logging.Info().
		Str("service", s.name).
		Str("addr", s.server.Addr).
		Msg("HTTP server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logging.Warn().
			Err(err).
			Str("service", s.name).
			Msg("HTTP server shutdown incomplete")
	}
	<-errCh
	return ctx.Err()
}

// String implements fmt.Stringer for suture's log messages.
func (s *HTTPService) String() string {
	return s.name
}

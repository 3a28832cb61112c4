// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

// Package api provides HTTP routing for the notification producer API
// using Chi router.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskmesh/taskmesh/internal/auth"
	"github.com/taskmesh/taskmesh/internal/bridge"
	"github.com/taskmesh/taskmesh/internal/middleware"
)

// RouterConfig carries the HTTP-facing settings the router needs.
type RouterConfig struct {
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow time.Duration
}

// Router assembles the producer API routes with their middleware stack.
type Router struct {
	cfg     RouterConfig
	handler *Handler
	authn   *middleware.Authenticator
}

// NewRouter creates a Router. The resolver may be nil, which disables
// the authenticated routes.
func NewRouter(cfg RouterConfig, queue *bridge.Queue, resolver auth.TokenResolver) *Router {
	return &Router{
		cfg:     cfg,
		handler: NewHandler(queue),
		authn:   middleware.NewAuthenticator(resolver),
	}
}

// chiMiddleware adapts http.HandlerFunc middleware to Chi's
// func(http.Handler) http.Handler so it can be mounted with r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Operational endpoints stay unauthenticated for probes and scrapers.
	r.Get("/healthz", router.handler.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Producer endpoints require a valid service token.
	r.Route("/api/notifications", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.cfg.RateLimitReqs, router.cfg.RateLimitWindow))
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(router.authn.Authenticate))

		r.Post("/send", router.handler.SendNotification)
		r.Get("/queue", router.handler.QueueDepth)
	})

	return r
}

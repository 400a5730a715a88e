// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StaticRoute is where stored poll option images are served.
const StaticRoute = "/static/"

// RouterConfig lists what a binary serves.
type RouterConfig struct {
	// WebSocket is mounted at "/".
	WebSocket http.Handler

	Health HealthFunc

	// StaticDir is served under StaticRoute when set.
	StaticDir string

	Middleware *Middleware
}

// NewRouter builds the chi router shared by the hub and the aggregator.
func NewRouter(cfg RouterConfig) http.Handler {
	mw := cfg.Middleware
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	started := time.Now()

	r := chi.NewRouter()
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(PrometheusMetrics)
	r.Use(mw.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, ErrCodeNotFound, "Not found")
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Get("/healthz", healthHandler(started, cfg.Health))
		if cfg.StaticDir != "" {
			fs := http.StripPrefix(StaticRoute, http.FileServer(http.Dir(cfg.StaticDir)))
			r.Get(StaticRoute+"*", fs.ServeHTTP)
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	if cfg.WebSocket != nil {
		r.With(mw.RateLimit()).Get("/", cfg.WebSocket.ServeHTTP)
	}

	return r
}

// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package api provides the HTTP surface shared by the hub and the aggregator.

Both binaries serve a small chi router:

  - GET /          websocket upgrade (hub sessions, or hub and viewer
    connections on the aggregator)
  - GET /healthz   JSON health with component details
  - GET /metrics   Prometheus exposition
  - GET /static/*  stored poll option images (aggregator only)

Middleware Stack:

Every route passes through a correlation id middleware, chi's RealIP and
Recoverer, and go-chi/cors. /healthz, /static and the websocket route are
additionally limited per client IP with go-chi/httprate.

Usage Example:

	router := api.NewRouter(api.RouterConfig{
	    WebSocket:  server,
	    Health:     health,
	    StaticDir:  cfg.Aggregator.StaticDir,
	    Middleware: api.NewMiddleware(api.MiddlewareConfigFrom(cfg.Security)),
	})
	http.ListenAndServe(cfg.Aggregator.Addr(), router)
*/
package api

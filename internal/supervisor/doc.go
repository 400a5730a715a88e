// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package supervisor runs the long-lived services of both binaries under a
suture v4 tree.

# Overview

Services are grouped into three layers so that a crash in one layer is
restarted without disturbing the others:

	hub ("modvote-hub")
	├── data-layer
	│   └── registry-gc            (badger value log GC)
	├── messaging-layer
	│   ├── hub                    (session event loop)
	│   └── aggregator-link        (websocket to the aggregator)
	└── api-layer
	    └── http-server

	aggregator ("modvote-aggregator")
	├── messaging-layer
	│   └── aggregator-ticker      (intermediate tallies)
	└── api-layer
	    └── http-server

Supervisor events (service start, failure, backoff) are logged through
sutureslog with the zerolog-backed slog handler from internal/logging.

# Usage Example

	tree := supervisor.NewTree("modvote-hub", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(h)
	tree.AddAPIService(supervisor.NewHTTPServerService("http-server", srv, 10*time.Second))
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor stopped")
	}
*/
package supervisor

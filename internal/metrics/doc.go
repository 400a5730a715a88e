// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

// Package metrics declares the Prometheus collectors of both binaries.
// Collectors are registered on the default registry by promauto and exposed
// at /metrics by the API router.
package metrics

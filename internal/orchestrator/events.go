// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package orchestrator

import "github.com/tomtom215/modvote/internal/protocol"

// AggregatorConnected is published when the link is up.
type AggregatorConnected struct {
	URL string
}

// AggregatorMessage carries a decoded frame from the aggregator.
type AggregatorMessage struct {
	Msg protocol.Message
}

// AggregatorDisconnected is published when an established link drops.
type AggregatorDisconnected struct {
	URL string
}

// pollTimerFired is published by the poll timer. Stale generations are
// ignored.
type pollTimerFired struct {
	gen uint64
}

// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package cache provides a small thread-safe TTL cache.

The aggregator uses it to remember Twitch subscription lookups per
(channel, viewer) pair so that a burst of Vote messages does not turn into a
burst of Helix requests.

Expiration is checked lazily on Get and periodically by a cleanup goroutine
that lives until Close is called. Time comes from a clockwork.Clock so tests
can advance it deterministically:

	clock := clockwork.NewFakeClock()
	c := cache.New[string, bool](time.Minute, cache.WithClock[string, bool](clock))
	defer c.Close()
	c.Set("123:456", true)
	clock.Advance(2 * time.Minute)
	_, ok := c.Get("123:456") // false
*/
package cache

// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package logging provides the zerolog-based logger shared by the hub and the
aggregator.

A single global logger is configured once from main with Init and read
through the level helpers:

	logging.Init(logging.Config{Level: "debug", Format: "console"})
	logging.Info().Str("addr", addr).Msg("Hub listening")
	logging.Err(err).Msg("Failed to persist provider")

Component loggers carry a fixed set of fields:

	log := logging.WithSession(session.ID())
	log.Warn().Str("type", msgType).Msg("Dropping unauthorized message")

Polls and channel authorizations attach a short correlation ID to their
context so every line of one lifecycle can be grepped together:

	ctx = logging.ContextWithNewCorrelationID(ctx)
	logging.Ctx(ctx).Info().Msg("Poll finished")

SlogHandler bridges log/slog callers (the suture supervisor hooks) onto the
same zerolog sink.

Always finish an event chain with Msg or Send; an unfinished chain is never
written.
*/
package logging

// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package aggregator is the public extension backend. Hubs connect to it once
per channel; Twitch extension front-ends connect as viewers.

# Connections

Every websocket starts unclassified. The first message decides its kind:

  - Authorization: the code is exchanged with Twitch and the connection
    becomes the channel connection of the authorized broadcaster. A second
    connection for a channel that is already connected is closed.
  - ViewerAuthorization: the extension token is verified and the
    connection becomes a viewer of the token's channel.

Anything else closes the connection.

# Polls

A channel runs at most one poll. StartPoll is rejected with PollError while
a poll runs or before the hub sent SetConfig. Accepted polls wait their
duration in one-second steps on an injectable clock and end with a
destructive tally sent to the hub as PollResult. PollStopped from the hub
and channel disconnects cancel the poll through its context.

Every IntermediateInterval a non-destructive tally of running polls (or the
mode preferences of a viewers-mode channel) is sent to the viewers.

# Viewer delivery

Messages for viewers go through Twitch extension PubSub when they fit in
PubSubMaxBytes, and to every viewer socket otherwise or when PubSub fails.
Each channel delivers from its own outbox goroutine so viewers see messages
in the order they were produced.
*/
package aggregator

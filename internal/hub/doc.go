// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package hub is the local connection hub of the streamer's machine.

Providers, configuration UIs and overlays connect to the hub over websocket.
Each connection becomes a Session carrying role flags:

  - Provider: the session registered a provider with Client.Register
  - Configurer: the session sent Config.Register
  - Subscriber: the session receives Info.Open status updates

# Event Loop

Everything that mutates orchestrator state runs on one goroutine, the loop
started by Run. It drains four queues with priority selection:

 1. Context cancellation (shutdown)
 2. Session register and unregister
 3. Inbound frames and published events

Frames of a session are queued in arrival order. A session is removed from
the registry as soon as its unregister is drained, so frames that were still
queued behind it are dropped.

Inbound frames are decoded with the protocol package and gated by the authz
policy before the Dispatcher sees them. Malformed frames, unknown types and
unauthorized messages are logged and dropped.

Other components never touch orchestrator state directly. They call Publish
with an Event and the Dispatcher handles it on the loop.

# Delivery

Send and Broadcast encode once and hand the frame to each recipient's
bounded send queue. A full queue drops the frame; a slow recipient never
blocks the loop.
*/
package hub

// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package websocket wraps gorilla/websocket connections for both ends of the
system.

A Conn owns two goroutines:

  - readPump delivers text frames to a FrameHandler in arrival order and
    reports the close exactly once
  - writePump drains a bounded send queue and pings the peer

Send never blocks. A full queue drops the frame, which keeps one slow
recipient from stalling a broadcast. A peer that stops answering pings is
closed once its read deadline passes, which doubles as the heartbeat.

Server side:

	ws, err := websocket.Upgrade(w, r, origins)
	conn := websocket.NewConn(ws, handler, websocket.Options{})
	conn.Start()

Client side:

	conn, err := websocket.Dial(ctx, "wss://ebs.example.com", handler, opts)
*/
package websocket

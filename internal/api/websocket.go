// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package api

import (
	"net/http"

	"github.com/tomtom215/modvote/internal/hub"
	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/websocket"
)

// HubSocket accepts hub sessions. The session is registered before the
// connection starts reading so its frames always follow the registration.
func HubSocket(h *hub.Hub, origins []string, opts websocket.Options) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Upgrade(w, r, origins)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("Websocket upgrade failed")
			return
		}
		conn := websocket.NewConn(ws, h, opts)
		s := h.Accept(conn)
		logging.Ctx(r.Context()).Debug().Uint64("session", s.ID()).Str("remote", conn.RemoteAddr()).Msg("Session connected")
		conn.Start()
	})
}

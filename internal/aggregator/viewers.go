// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package aggregator

import (
	"context"
	"errors"
	"math"

	"github.com/tomtom215/modvote/internal/metrics"
	"github.com/tomtom215/modvote/internal/protocol"
	"github.com/tomtom215/modvote/internal/viewer"
	"github.com/tomtom215/modvote/internal/websocket"
)

// viewerConn is an authorized extension front-end.
type viewerConn struct {
	conn  *websocket.Conn
	voter *viewer.Voter
}

func (v *viewerConn) send(msg protocol.Message) {
	frame, err := encode(msg)
	if err != nil {
		return
	}
	if v.conn.Send(frame) {
		metrics.MessagesSent.WithLabelValues(msg.MessageType()).Inc()
	}
}

// checkSubscription upgrades a Linked viewer whose channel reports a
// subscription and re-announces the role. The result is dropped when the
// viewer re-authorized in the meantime.
func (s *Server) checkSubscription(v *viewerConn, claims *viewer.Claims) {
	if v.voter.Role() != viewer.RoleLinked {
		return
	}
	ch, ok := s.Channel(claims.ChannelID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	subscribed, err := s.twitch.IsSubscriber(ctx, ch.grant, ch.id, claims.UserID)
	if err != nil {
		s.log.Debug().Err(err).Str("viewer", claims.ID()).Msg("Subscription check failed")
		return
	}
	if !subscribed || v.voter.Claims() != claims {
		return
	}
	v.voter.SetRole(viewer.RoleSubscriber)
	v.send(protocol.Role{Data: viewer.RoleSubscriber.String()})
	s.log.Info().Str("channel", claims.ChannelID).Str("viewer", claims.ID()).Msg("Viewer upgraded to subscriber")
}

func (s *Server) authorizeViewer(p *peer, token string) {
	claims, err := viewer.VerifyToken(token, s.opts.ExtensionSecret)
	if err != nil {
		s.log.Info().Err(err).Uint64("conn", p.conn.ID()).Msg("Closing connection: invalid viewer token")
		metrics.MessagesRejected.WithLabelValues("unauthorized").Inc()
		p.conn.Close()
		return
	}

	// Linked viewers start as Linked; the subscription check runs off the
	// read goroutine.
	role := viewer.ResolveRole(context.Background(), claims, nil)
	v := &viewerConn{
		conn:  p.conn,
		voter: viewer.NewVoter(claims, role, s.voterLimit(), s.opts.VoteBurst),
	}

	s.mu.Lock()
	p.kind = peerViewer
	p.viewer = v
	s.viewers[p.conn.ID()] = v
	s.mu.Unlock()

	metrics.TrackConnection(metrics.KindUnknown, false)
	metrics.TrackConnection(metrics.KindViewer, true)
	s.log.Info().Str("channel", claims.ChannelID).Str("viewer", claims.ID()).Str("role", role.String()).Msg("Viewer connected")

	v.send(protocol.Role{Data: role.String()})
	if ch, ok := s.Channel(claims.ChannelID); ok {
		ch.greet(v)
	}
	go s.checkSubscription(v, claims)
}

func (s *Server) handleViewerMessage(v *viewerConn, msg protocol.Message) {
	switch msg := msg.(type) {
	case *protocol.ViewerAuthorization:
		claims, err := viewer.VerifyToken(msg.Token, s.opts.ExtensionSecret)
		if err != nil {
			s.log.Info().Err(err).Str("viewer", v.voter.Claims().ID()).Msg("Closing connection: invalid viewer token")
			v.conn.Close()
			return
		}
		role := viewer.ResolveRole(context.Background(), claims, nil)
		v.voter.Reauthorize(claims, role)
		v.send(protocol.Role{Data: role.String()})
		go s.checkSubscription(v, claims)

	case *protocol.Vote:
		if _, err := v.voter.Apply(msg.Data); err != nil {
			if errors.Is(err, viewer.ErrThrottled) {
				metrics.Votes.WithLabelValues("throttled").Inc()
			}
			return
		}
		metrics.Votes.WithLabelValues("accepted").Inc()

	default:
		s.log.Debug().Str("type", msg.MessageType()).Str("viewer", v.voter.Claims().ID()).Msg("Ignoring viewer message")
	}
}

// secondsUntil rounds the remaining time to whole seconds, never negative.
func secondsUntil(remaining float64) int {
	if remaining <= 0 {
		return 0
	}
	return int(math.Round(remaining))
}

// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/metrics"
	"github.com/tomtom215/modvote/internal/protocol"
	"github.com/tomtom215/modvote/internal/twitch"
	"github.com/tomtom215/modvote/internal/viewer"
	"github.com/tomtom215/modvote/internal/websocket"
)

// Twitch is the part of *twitch.Client the aggregator uses.
type Twitch interface {
	Authorize(ctx context.Context, code string) (*twitch.Grant, protocol.Channel, error)
	Revoke(ctx context.Context, grant *twitch.Grant) error
	IsSubscriber(ctx context.Context, grant *twitch.Grant, broadcasterID, userID string) (bool, error)
	SendPubSub(ctx context.Context, channelID string, message []byte) error
}

// Options configure a Server. Zero durations select the defaults.
type Options struct {
	ExtensionSecret []byte
	Origins         []string

	// HeartbeatInterval is the ping period. A peer that stays silent for two
	// periods is disconnected.
	HeartbeatInterval    time.Duration
	IntermediateInterval time.Duration
	MinPollDuration      time.Duration
	RequestTimeout       time.Duration

	// PubSubMaxBytes disables PubSub when zero.
	PubSubMaxBytes int

	VotesPerSecond float64
	VoteBurst      int
	SendBuffer     int

	Images *ImageStore
	Clock  clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.IntermediateInterval <= 0 {
		o.IntermediateInterval = 2 * time.Second
	}
	if o.MinPollDuration <= 0 {
		o.MinPollDuration = protocol.MinPollDuration * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

type peerKind int

const (
	peerUnknown peerKind = iota
	peerChannel
	peerViewer
)

func (k peerKind) metricsKind() string {
	switch k {
	case peerChannel:
		return metrics.KindChannel
	case peerViewer:
		return metrics.KindViewer
	default:
		return metrics.KindUnknown
	}
}

// peer is the per-connection state. kind, channel and viewer are only
// touched from the connection's read goroutine.
type peer struct {
	conn    *websocket.Conn
	kind    peerKind
	channel *Channel
	viewer  *viewerConn
}

// Server accepts hub and viewer connections.
type Server struct {
	opts   Options
	twitch Twitch
	log    zerolog.Logger

	mu       sync.RWMutex
	peers    map[uint64]*peer
	channels map[string]*Channel
	viewers  map[uint64]*viewerConn
}

// NewServer creates a Server.
func NewServer(tw Twitch, opts Options) *Server {
	return &Server{
		opts:     opts.withDefaults(),
		twitch:   tw,
		log:      logging.WithComponent("aggregator"),
		peers:    make(map[uint64]*peer),
		channels: make(map[string]*Channel),
		viewers:  make(map[uint64]*viewerConn),
	}
}

// ServeHTTP upgrades the request and starts serving the connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Upgrade(w, r, s.opts.Origins)
	if err != nil {
		s.log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	conn := websocket.NewConn(ws, s, websocket.Options{
		SendBuffer: s.opts.SendBuffer,
		PingPeriod: s.opts.HeartbeatInterval,
		PongWait:   2 * s.opts.HeartbeatInterval,
	})

	s.mu.Lock()
	s.peers[conn.ID()] = &peer{conn: conn}
	s.mu.Unlock()
	metrics.TrackConnection(metrics.KindUnknown, true)

	conn.Start()
}

// HandleFrame implements websocket.FrameHandler.
func (s *Server) HandleFrame(c *websocket.Conn, frame []byte) {
	s.mu.RLock()
	p, ok := s.peers[c.ID()]
	s.mu.RUnlock()
	if !ok {
		return
	}

	msg, err := protocol.Decode(frame)
	if err != nil {
		s.handleDecodeError(p, frame, err)
		return
	}
	metrics.MessagesReceived.WithLabelValues(msg.MessageType()).Inc()

	switch p.kind {
	case peerUnknown:
		s.classify(p, msg)
	case peerChannel:
		p.channel.HandleMessage(msg)
	case peerViewer:
		s.handleViewerMessage(p.viewer, msg)
	}
}

func (s *Server) handleDecodeError(p *peer, frame []byte, err error) {
	metrics.MessagesRejected.WithLabelValues("malformed").Inc()
	typ, _ := protocol.PeekType(frame)

	switch p.kind {
	case peerUnknown:
		s.log.Info().Err(err).Uint64("conn", p.conn.ID()).Msg("Closing connection after invalid first message")
		p.conn.Close()
	case peerChannel:
		p.channel.log.Warn().Err(err).Str("type", typ).Msg("Invalid message from hub")
		if typ == protocol.TypeStartPoll {
			p.channel.sendHub(protocol.PollError{Reason: err.Error()})
		}
	case peerViewer:
		s.log.Debug().Err(err).Str("type", typ).Str("viewer", p.viewer.voter.Claims().ID()).Msg("Invalid message from viewer")
		if typ == protocol.TypeVote {
			metrics.Votes.WithLabelValues("invalid").Inc()
		}
	}
}

// HandleClose implements websocket.FrameHandler.
func (s *Server) HandleClose(c *websocket.Conn) {
	s.mu.Lock()
	p, ok := s.peers[c.ID()]
	delete(s.peers, c.ID())
	if ok && p.kind == peerViewer {
		delete(s.viewers, c.ID())
	}
	if ok && p.kind == peerChannel && s.channels[p.channel.id] == p.channel {
		delete(s.channels, p.channel.id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	metrics.TrackConnection(p.kind.metricsKind(), false)

	switch p.kind {
	case peerChannel:
		p.channel.Close()
	case peerViewer:
		s.log.Info().Str("channel", p.viewer.voter.ChannelID()).Str("viewer", p.viewer.voter.Claims().ID()).Msg("Viewer disconnected")
	}
}

// classify turns an unknown connection into a channel or viewer connection.
func (s *Server) classify(p *peer, msg protocol.Message) {
	switch msg := msg.(type) {
	case *protocol.Authorization:
		s.authorizeChannel(p, msg.Data.Code)
	case *protocol.ViewerAuthorization:
		s.authorizeViewer(p, msg.Token)
	default:
		s.log.Info().Str("type", msg.MessageType()).Uint64("conn", p.conn.ID()).Msg("Closing connection: sent unknown message")
		metrics.MessagesRejected.WithLabelValues("unauthorized").Inc()
		p.conn.Close()
	}
}

func (s *Server) authorizeChannel(p *peer, code string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()

	grant, info, err := s.twitch.Authorize(ctx, code)
	if err != nil {
		s.log.Info().Err(err).Uint64("conn", p.conn.ID()).Msg("Channel authorization failed")
		if frame, encErr := encode(protocol.AuthorizationError{Reason: authorizationFailure(err)}); encErr == nil {
			p.conn.Send(frame)
		}
		p.conn.Close()
		return
	}

	ch := newChannel(s, p.conn, grant, info)

	s.mu.Lock()
	if _, dup := s.channels[ch.id]; dup {
		s.mu.Unlock()
		ch.cancel()
		ch.log.Info().Msg("Closing connection: channel already connected")
		go s.revoke(grant)
		p.conn.Close()
		return
	}
	s.channels[ch.id] = ch
	p.kind = peerChannel
	p.channel = ch
	s.mu.Unlock()

	metrics.TrackConnection(metrics.KindUnknown, false)
	metrics.TrackConnection(metrics.KindChannel, true)
	ch.log.Info().Str("name", info.Name).Msg("Channel authorized")

	ch.start()
	ch.sendHub(protocol.AuthorizationSuccess{Data: info})
	go s.upgradeSubscribers(ch)
}

// authorizationFailure is the reason reported to the hub for a failed
// authorization.
func authorizationFailure(err error) string {
	switch {
	case errors.Is(err, twitch.ErrMissingScopes):
		return "The authorization did not grant the required permissions"
	case errors.Is(err, twitch.ErrCircuitOpen):
		return "Twitch is currently unavailable"
	default:
		return "Twitch rejected the authorization"
	}
}

// upgradeSubscribers re-checks Linked viewers that joined before their
// channel was connected.
func (s *Server) upgradeSubscribers(ch *Channel) {
	for _, v := range s.viewersOf(ch.id) {
		s.checkSubscription(v, v.voter.Claims())
	}
}

func (s *Server) revoke(grant *twitch.Grant) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	if err := s.twitch.Revoke(ctx, grant); err != nil {
		s.log.Debug().Err(err).Msg("Token revocation failed")
	}
}

// Channel returns the connected channel with the given id.
func (s *Server) Channel(id string) (*Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	return ch, ok
}

// Stats returns the number of connected channels and viewers.
func (s *Server) Stats() (channels, viewers int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels), len(s.viewers)
}

// viewersOf returns the viewers of a channel ordered by connection id.
func (s *Server) viewersOf(channelID string) []*viewerConn {
	s.mu.RLock()
	out := make([]*viewerConn, 0, len(s.viewers))
	for _, v := range s.viewers {
		if v.voter.ChannelID() == channelID {
			out = append(out, v)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].conn.ID() < out[j].conn.ID() })
	return out
}

// votersOf returns the vote stores of a channel's viewers in viewersOf order.
func (s *Server) votersOf(channelID string) []*viewer.Voter {
	viewers := s.viewersOf(channelID)
	voters := make([]*viewer.Voter, len(viewers))
	for i, v := range viewers {
		voters[i] = v.voter
	}
	return voters
}

func (s *Server) channelList() []*Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	return out
}

// Tick sends the intermediate tally of every channel.
func (s *Server) Tick() {
	for _, ch := range s.channelList() {
		ch.sendIntermediate()
	}
}

// Serve runs the intermediate tally ticker until ctx is done. It
// implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	ticker := s.opts.Clock.NewTicker(s.opts.IntermediateInterval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.opts.IntermediateInterval).Msg("Intermediate tally ticker started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.Tick()
		}
	}
}

func (s *Server) String() string {
	return "aggregator-ticker"
}

// Shutdown closes every connection.
func (s *Server) Shutdown() {
	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.peers))
	for _, p := range s.peers {
		conns = append(conns, p.conn)
	}
	s.mu.RUnlock()
	for _, c := range conns {
		c.Close()
	}
	s.log.Info().Int("connections", len(conns)).Msg("Aggregator connections closed")
}

// voterLimit converts the configured vote rate.
func (s *Server) voterLimit() rate.Limit {
	if s.opts.VotesPerSecond <= 0 {
		return 0
	}
	return rate.Limit(s.opts.VotesPerSecond)
}

func encode(msg protocol.Message) ([]byte, error) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.MessageType(), err)
	}
	return frame, nil
}

// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package hub

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tomtom215/modvote/internal/authz"
	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/metrics"
	"github.com/tomtom215/modvote/internal/protocol"
	"github.com/tomtom215/modvote/internal/websocket"
)

// ShutdownReason identifies why the hub loop stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

const queueSize = 256

// Event is anything published onto the hub loop by another component.
type Event interface{}

// Dispatcher receives everything the loop drains. All methods are called on
// the loop goroutine.
type Dispatcher interface {
	HandleMessage(s *Session, msg protocol.Message)
	HandleEvent(ev Event)
	HandleClose(s *Session)
}

type workKind uint8

const (
	workRegister workKind = iota
	workFrame
	workUnregister
)

// work is one session lifecycle step or inbound frame. All three share one
// queue so a session's register, frames and close are handled in the order
// they happened.
type work struct {
	kind      workKind
	session   *Session
	sessionID uint64
	frame     []byte
}

// Hub tracks sessions and serializes all message handling.
type Hub struct {
	enforcer   *authz.Enforcer
	dispatcher Dispatcher

	mu       sync.RWMutex
	sessions map[uint64]*Session

	work     chan work
	events   chan Event
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a hub gated by enforcer.
func New(enforcer *authz.Enforcer) *Hub {
	return &Hub{
		enforcer: enforcer,
		sessions: make(map[uint64]*Session),
		work:     make(chan work, queueSize),
		events:   make(chan Event, queueSize),
		done:     make(chan struct{}),
	}
}

// SetDispatcher installs the handler. It must be called before Run.
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// Accept registers a new connection and returns its session.
func (h *Hub) Accept(conn Sender) *Session {
	s := NewSession(conn)
	select {
	case h.work <- work{kind: workRegister, session: s, sessionID: s.id}:
		metrics.TrackConnection(metrics.KindSession, true)
	case <-h.done:
		conn.Close()
	}
	return s
}

// Deliver queues a frame received on a session.
func (h *Hub) Deliver(sessionID uint64, frame []byte) {
	select {
	case h.work <- work{kind: workFrame, sessionID: sessionID, frame: frame}:
	case <-h.done:
	}
}

// Disconnect queues the removal of a session.
func (h *Hub) Disconnect(sessionID uint64) {
	select {
	case h.work <- work{kind: workUnregister, sessionID: sessionID}:
	case <-h.done:
	}
}

// Publish queues an event for the dispatcher.
func (h *Hub) Publish(ev Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// HandleFrame implements websocket.FrameHandler.
func (h *Hub) HandleFrame(c *websocket.Conn, frame []byte) {
	h.Deliver(c.ID(), frame)
}

// HandleClose implements websocket.FrameHandler.
func (h *Hub) HandleClose(c *websocket.Conn) {
	h.Disconnect(c.ID())
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.Run(ctx)
}

func (h *Hub) String() string { return "hub" }

// Run processes queued work until ctx is canceled.
func (h *Hub) Run(ctx context.Context) error {
	if h.dispatcher == nil {
		return errors.New("hub: no dispatcher")
	}
	defer h.doneOnce.Do(func() { close(h.done) })

	for {
		// Priority 1: shutdown
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: session work and events
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case w := <-h.work:
			h.handleWork(w)
		case ev := <-h.events:
			h.dispatcher.HandleEvent(ev)
		}
	}
}

func (h *Hub) handleWork(w work) {
	switch w.kind {
	case workRegister:
		h.addSession(w.session)
	case workFrame:
		h.route(w)
	case workUnregister:
		h.removeSession(w.sessionID)
	}
}

func (h *Hub) addSession(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	total := len(h.sessions)
	h.mu.Unlock()

	log := logging.WithSession(s.id)
	log.Debug().Int("total_sessions", total).Msg("Session connected")
}

func (h *Hub) removeSession(id uint64) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	total := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return
	}
	metrics.TrackConnection(metrics.KindSession, false)
	log := logging.WithSession(id)
	log.Debug().Int("total_sessions", total).Msg("Session disconnected")
	h.dispatcher.HandleClose(s)
}

// route decodes, authorizes and dispatches one frame.
func (h *Hub) route(in work) {
	log := logging.WithSession(in.sessionID)

	s, ok := h.Session(in.sessionID)
	if !ok {
		metrics.MessagesRejected.WithLabelValues("closed").Inc()
		log.Debug().Msg("Dropping frame from closed session")
		return
	}

	msg, err := protocol.Decode(in.frame)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, protocol.ErrUnknownType) {
			reason = "unknown_type"
		}
		metrics.MessagesRejected.WithLabelValues(reason).Inc()
		log.Warn().Err(err).Msg("Dropping inbound message")
		return
	}

	msgType := msg.MessageType()
	metrics.MessagesReceived.WithLabelValues(msgType).Inc()

	allowed, err := h.enforcer.Allowed(s.RoleNames(), msgType, authz.ActionHandle)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("Authorization check failed")
		return
	}
	if !allowed {
		metrics.MessagesRejected.WithLabelValues("unauthorized").Inc()
		log.Warn().Str("type", msgType).Strs("roles", s.RoleNames()).Msg("Message not allowed for session")
		return
	}

	h.dispatcher.HandleMessage(s, msg)
}

// Session looks up a live session.
func (h *Hub) Session(id uint64) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Send encodes msg and queues it for one session.
func (h *Hub) Send(s *Session, msg protocol.Message) bool {
	frame, err := protocol.Encode(msg)
	if err != nil {
		log := logging.WithSession(s.id)
		log.Error().Err(err).Msg("Failed to encode message")
		return false
	}
	return h.sendFrame(s, msg.MessageType(), frame)
}

// SendTo is Send by session id.
func (h *Hub) SendTo(id uint64, msg protocol.Message) bool {
	s, ok := h.Session(id)
	if !ok {
		return false
	}
	return h.Send(s, msg)
}

// Broadcast sends msg to every session matching pred, in session id order.
func (h *Hub) Broadcast(pred Predicate, msg protocol.Message) int {
	frame, err := protocol.Encode(msg)
	if err != nil {
		logging.Error().Err(err).Str("type", msg.MessageType()).Msg("Failed to encode broadcast")
		return 0
	}

	sent := 0
	for _, s := range h.sorted() {
		if pred(s) && h.sendFrame(s, msg.MessageType(), frame) {
			sent++
		}
	}
	return sent
}

func (h *Hub) sendFrame(s *Session, msgType string, frame []byte) bool {
	if !s.conn.Send(frame) {
		return false
	}
	metrics.MessagesSent.WithLabelValues(msgType).Inc()
	return true
}

func (h *Hub) sorted() []*Session {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].id < sessions[j].id
	})
	return sessions
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	sessions := h.sorted()
	for _, s := range sessions {
		s.conn.Close()
	}

	h.mu.Lock()
	h.sessions = make(map[uint64]*Session)
	h.mu.Unlock()

	logging.Info().
		Str("component", "hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("sessions_closed", len(sessions)).
		Msg("Hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

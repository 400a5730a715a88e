// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/modvote/internal/hub"
	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/metrics"
	"github.com/tomtom215/modvote/internal/protocol"
	"github.com/tomtom215/modvote/internal/websocket"
)

// DialFunc opens a connection whose frames go to handler.
type DialFunc func(ctx context.Context, url string, handler websocket.FrameHandler) (*websocket.Conn, error)

// LinkConfig configures a Link.
type LinkConfig struct {
	// Backoff is the fixed delay between dial attempts.
	Backoff time.Duration

	// SendBuffer is the outbound queue length of the connection.
	SendBuffer int

	Clock clockwork.Clock
	Dial  DialFunc
}

// Link maintains the websocket to the aggregator. It implements
// suture.Service and Aggregator.
type Link struct {
	publish func(hub.Event)
	cfg     LinkConfig

	mu     sync.Mutex
	target string
	gen    uint64
	conn   *websocket.Conn
	wake   chan struct{}
}

// NewLink creates a link that publishes events with publish.
func NewLink(publish func(hub.Event), cfg LinkConfig) *Link {
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	l := &Link{
		publish: publish,
		cfg:     cfg,
		wake:    make(chan struct{}, 1),
	}
	if l.cfg.Dial == nil {
		l.cfg.Dial = func(ctx context.Context, url string, handler websocket.FrameHandler) (*websocket.Conn, error) {
			return websocket.Dial(ctx, url, handler, websocket.Options{SendBuffer: cfg.SendBuffer})
		}
	}
	return l
}

// Connect drops any current connection and starts dialing url.
func (l *Link) Connect(url string) {
	l.mu.Lock()
	l.target = url
	l.gen++
	l.dropLocked()
	l.mu.Unlock()
	l.signal()
}

// Disconnect drops the connection and stops dialing.
func (l *Link) Disconnect() {
	l.mu.Lock()
	l.target = ""
	l.gen++
	l.dropLocked()
	l.mu.Unlock()
	l.signal()
}

func (l *Link) dropLocked() {
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
		metrics.AggregatorLinkUp.Set(0)
	}
}

func (l *Link) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Connected reports whether a connection is up.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Send queues msg on the current connection.
func (l *Link) Send(msg protocol.Message) bool {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		logging.Debug().Str("type", msg.MessageType()).Msg("Aggregator not connected, dropping message")
		return false
	}

	frame, err := protocol.Encode(msg)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to encode aggregator message")
		return false
	}
	if !conn.Send(frame) {
		return false
	}
	metrics.MessagesSent.WithLabelValues(msg.MessageType()).Inc()
	return true
}

// HandleFrame implements websocket.FrameHandler.
func (l *Link) HandleFrame(c *websocket.Conn, frame []byte) {
	l.mu.Lock()
	current := l.conn == c
	l.mu.Unlock()
	if !current {
		return
	}

	msg, err := protocol.Decode(frame)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, protocol.ErrUnknownType) {
			reason = "unknown_type"
		}
		metrics.MessagesRejected.WithLabelValues(reason).Inc()
		logging.Warn().Err(err).Msg("Dropping aggregator message")
		return
	}
	metrics.MessagesReceived.WithLabelValues(msg.MessageType()).Inc()
	l.publish(AggregatorMessage{Msg: msg})
}

// HandleClose implements websocket.FrameHandler. Serve watches Done instead.
func (l *Link) HandleClose(*websocket.Conn) {}

func (l *Link) String() string { return "aggregator-link" }

// Serve dials while a target is set and holds the connection until it
// drops, the target changes or ctx ends.
func (l *Link) Serve(ctx context.Context) error {
	attempts := 0
	for {
		l.mu.Lock()
		target, gen := l.target, l.gen
		l.mu.Unlock()

		if target == "" {
			attempts = 0
			select {
			case <-ctx.Done():
				l.Disconnect()
				return ctx.Err()
			case <-l.wake:
				continue
			}
		}

		if attempts > 0 {
			metrics.AggregatorReconnects.Inc()
		}
		attempts++

		conn, err := l.cfg.Dial(ctx, target, l)
		if err != nil {
			logging.Warn().Err(err).Str("url", target).Dur("retry_in", l.cfg.Backoff).Msg("Aggregator dial failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.wake:
			case <-l.cfg.Clock.After(l.cfg.Backoff):
			}
			continue
		}

		l.mu.Lock()
		if l.gen != gen {
			l.mu.Unlock()
			conn.Close()
			continue
		}
		l.conn = conn
		l.mu.Unlock()

		attempts = 0
		metrics.AggregatorLinkUp.Set(1)
		logging.Info().Str("url", target).Msg("Connected to aggregator")
		l.publish(AggregatorConnected{URL: target})

		select {
		case <-ctx.Done():
			l.Disconnect()
			return ctx.Err()
		case <-conn.Done():
		}

		l.mu.Lock()
		unexpected := l.conn == conn
		if unexpected {
			l.conn = nil
			l.target = ""
			metrics.AggregatorLinkUp.Set(0)
		}
		l.mu.Unlock()

		if unexpected {
			l.publish(AggregatorDisconnected{URL: target})
		}
	}
}

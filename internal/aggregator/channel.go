// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package aggregator

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/metrics"
	"github.com/tomtom215/modvote/internal/protocol"
	"github.com/tomtom215/modvote/internal/twitch"
	"github.com/tomtom215/modvote/internal/viewer"
	"github.com/tomtom215/modvote/internal/websocket"
)

const outboxSize = 64

var (
	// ErrPollRunning rejects a StartPoll while another poll is open.
	ErrPollRunning = errors.New("poll already running")

	// ErrNoConfig rejects a StartPoll before the hub sent SetConfig.
	ErrNoConfig = errors.New("channel configuration missing")
)

// Poll error reasons sent to the hub.
const (
	reasonPollRunning = "Another poll is already running"
	reasonNoConfig    = "Streamer did not send configuration yet"
)

func pollErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrPollRunning):
		return reasonPollRunning
	case errors.Is(err, ErrNoConfig):
		return reasonNoConfig
	default:
		return err.Error()
	}
}

type outboxFrame struct {
	typ   string
	frame []byte
}

type activePoll struct {
	id        uuid.UUID
	poll      viewer.Poll
	mode      protocol.VotingMode
	startedAt time.Time
	cancel    context.CancelFunc
}

// Channel is an authorized hub connection and the state of its polls.
type Channel struct {
	id     string
	info   protocol.Channel
	conn   *websocket.Conn
	grant  *twitch.Grant
	server *Server
	log    zerolog.Logger

	mu       sync.Mutex
	config   *protocol.SetConfigData
	nextPoll time.Time
	poll     *activePoll

	ctx       context.Context
	cancel    context.CancelFunc
	outbox    chan outboxFrame
	closeOnce sync.Once
	done      chan struct{}
}

func newChannel(s *Server, conn *websocket.Conn, grant *twitch.Grant, info protocol.Channel) *Channel {
	id := strconv.FormatInt(info.ID, 10)
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		id:     id,
		info:   info,
		conn:   conn,
		grant:  grant,
		server: s,
		log:    logging.WithChannel(id),
		ctx:    ctx,
		cancel: cancel,
		outbox: make(chan outboxFrame, outboxSize),
		done:   make(chan struct{}),
	}
}

// ID returns the broadcaster id.
func (c *Channel) ID() string { return c.id }

// Info returns the channel identity.
func (c *Channel) Info() protocol.Channel { return c.info }

func (c *Channel) start() {
	go c.deliverLoop()
}

// HandleMessage processes a message from the hub.
func (c *Channel) HandleMessage(msg protocol.Message) {
	switch msg := msg.(type) {
	case *protocol.StartPoll:
		if err := c.startPoll(msg.Data); err != nil {
			c.log.Debug().Err(err).Msg("Rejected poll")
			c.sendHub(protocol.PollError{Reason: pollErrorReason(err)})
		}

	case *protocol.PollStopped:
		c.cancelPoll()
		c.mu.Lock()
		c.nextPoll = time.Time{}
		c.mu.Unlock()

	case *protocol.NextPoll:
		c.mu.Lock()
		c.nextPoll = c.server.opts.Clock.Now().Add(time.Duration(msg.In) * time.Second)
		c.mu.Unlock()
		c.broadcast(msg)

	case *protocol.NextPollCanceled:
		c.mu.Lock()
		c.nextPoll = time.Time{}
		c.mu.Unlock()
		c.broadcast(msg)

	case *protocol.SetConfig:
		cfg := msg.Data
		c.mu.Lock()
		c.config = &cfg
		c.mu.Unlock()
		c.broadcast(msg)

	case *protocol.PollWinner:
		c.broadcast(msg)

	default:
		c.log.Debug().Str("type", msg.MessageType()).Msg("Ignoring hub message")
	}
}

func (c *Channel) startPoll(data protocol.StartPollData) error {
	minSeconds := int(c.server.opts.MinPollDuration / time.Second)
	duration := max(data.Duration, minSeconds)

	c.mu.Lock()
	if c.poll != nil {
		c.mu.Unlock()
		return ErrPollRunning
	}
	if c.config == nil {
		c.mu.Unlock()
		return ErrNoConfig
	}

	options := data.Options
	if c.server.opts.Images != nil {
		options = c.server.opts.Images.Rewrite(options)
	}
	ctx, cancel := context.WithCancel(c.ctx)
	ap := &activePoll{
		id:        uuid.New(),
		poll:      viewer.Poll{AllowNothing: data.AllowNothing, Options: options, Participants: c.config.Participants},
		mode:      c.config.Mode,
		startedAt: c.server.opts.Clock.Now(),
		cancel:    cancel,
	}
	c.poll = ap
	c.mu.Unlock()

	metrics.PollsStarted.Inc()
	c.log.Info().Str("poll", ap.id.String()).Int("duration", duration).Int("options", len(options)).Msg("Poll started")

	c.sendHub(protocol.PollStarted{})
	c.broadcast(protocol.StartPoll{Data: protocol.StartPollData{
		AllowNothing: data.AllowNothing,
		Duration:     duration,
		Options:      options,
	}})

	timer := c.server.opts.Clock.NewTimer(time.Duration(duration) * time.Second)
	go c.runPoll(ctx, ap, timer)
	return nil
}

func (c *Channel) runPoll(ctx context.Context, ap *activePoll, timer clockwork.Timer) {
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.Chan():
	}

	c.mu.Lock()
	if c.poll != ap {
		c.mu.Unlock()
		return
	}
	c.poll = nil
	c.mu.Unlock()
	ap.cancel()

	c.broadcast(protocol.PollStopped{})
	result := viewer.Tally(c.server.votersOf(c.id), ap.poll, ap.mode, true)
	c.sendHub(protocol.PollResult{Data: result})

	metrics.PollsFinished.WithLabelValues("completed").Inc()
	metrics.PollDuration.Observe(c.server.opts.Clock.Since(ap.startedAt).Seconds())
	c.log.Info().Str("poll", ap.id.String()).Int("nothing", result.Nothing).Msg("Poll finished")
}

// cancelPoll stops the running poll without a result. Viewers are told
// voting stopped and every vote is cleared.
func (c *Channel) cancelPoll() bool {
	c.mu.Lock()
	ap := c.poll
	c.poll = nil
	c.mu.Unlock()
	if ap == nil {
		return false
	}
	ap.cancel()

	c.broadcast(protocol.PollStopped{})
	for _, v := range c.server.viewersOf(c.id) {
		v.voter.Take(true)
	}
	metrics.PollsFinished.WithLabelValues("canceled").Inc()
	c.log.Info().Str("poll", ap.id.String()).Msg("Poll canceled")
	return true
}

// Polling reports whether a poll is running.
func (c *Channel) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poll != nil
}

// greet sends a newly connected viewer the channel's current state.
func (c *Channel) greet(v *viewerConn) {
	c.mu.Lock()
	cfg := c.config
	next := c.nextPoll
	c.mu.Unlock()

	if cfg != nil {
		v.send(protocol.SetConfig{Data: *cfg})
	}
	if !next.IsZero() {
		remaining := next.Sub(c.server.opts.Clock.Now()).Seconds()
		v.send(protocol.NextPoll{In: secondsUntil(remaining)})
	}
}

// sendIntermediate sends viewers the running tally. Between polls only a
// viewers-mode channel has something to show.
func (c *Channel) sendIntermediate() {
	c.mu.Lock()
	cfg := c.config
	ap := c.poll
	c.mu.Unlock()
	if cfg == nil {
		return
	}

	voters := c.server.votersOf(c.id)
	switch {
	case ap != nil:
		c.broadcast(protocol.PollResult{Data: viewer.Tally(voters, ap.poll, ap.mode, false)})
	case cfg.Mode == protocol.ModeViewers:
		c.broadcast(protocol.PollResult{Data: viewer.ModeTally(voters, cfg.Participants)})
	}
}

func (c *Channel) sendHub(msg protocol.Message) {
	frame, err := encode(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to encode hub message")
		return
	}
	if c.conn.Send(frame) {
		metrics.MessagesSent.WithLabelValues(msg.MessageType()).Inc()
	}
}

// broadcast queues msg for every viewer of the channel.
func (c *Channel) broadcast(msg protocol.Message) {
	frame, err := encode(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to encode viewer message")
		return
	}
	select {
	case c.outbox <- outboxFrame{typ: msg.MessageType(), frame: frame}:
	default:
		metrics.FramesDropped.Inc()
		c.log.Warn().Str("type", msg.MessageType()).Msg("Viewer outbox full, dropping message")
	}
}

func (c *Channel) deliverLoop() {
	defer close(c.done)
	for {
		select {
		case f := <-c.outbox:
			c.deliver(f)
		case <-c.ctx.Done():
			for {
				select {
				case f := <-c.outbox:
					c.deliver(f)
				default:
					return
				}
			}
		}
	}
}

// deliver sends one frame through PubSub when it is small enough, and to
// every viewer socket otherwise or when PubSub fails.
func (c *Channel) deliver(f outboxFrame) {
	maxBytes := c.server.opts.PubSubMaxBytes
	if maxBytes > 0 {
		if len(f.frame) <= maxBytes {
			ctx, cancel := context.WithTimeout(context.Background(), c.server.opts.RequestTimeout)
			err := c.server.twitch.SendPubSub(ctx, c.id, f.frame)
			cancel()
			if err == nil {
				metrics.MessagesSent.WithLabelValues(f.typ).Inc()
				return
			}
			c.log.Debug().Err(err).Str("type", f.typ).Msg("PubSub failed, using sockets")
			metrics.PubSubFallbacks.WithLabelValues("error").Inc()
		} else {
			metrics.PubSubFallbacks.WithLabelValues("size").Inc()
		}
	}

	for _, v := range c.server.viewersOf(c.id) {
		if v.conn.Send(f.frame) {
			metrics.MessagesSent.WithLabelValues(f.typ).Inc()
		}
	}
}

// Close ends the channel: the poll is canceled, a pending NextPoll is
// withdrawn and the token revoked.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.cancelPoll()

		c.mu.Lock()
		pending := !c.nextPoll.IsZero()
		c.nextPoll = time.Time{}
		c.mu.Unlock()
		if pending {
			c.broadcast(protocol.NextPollCanceled{})
		}

		go c.server.revoke(c.grant)
		c.cancel()
		c.log.Info().Msg("Channel disconnected")
	})
}

// Done is closed once every queued viewer message has been delivered after
// Close.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024

	defaultPongWait   = 60 * time.Second
	defaultSendBuffer = 256
)

// connIDCounter hands out monotonically increasing connection ids, so
// callers can iterate connections in a stable order.
var connIDCounter atomic.Uint64

// FrameHandler receives everything a Conn reads. Both methods run on the
// connection's read goroutine.
type FrameHandler interface {
	HandleFrame(c *Conn, frame []byte)
	HandleClose(c *Conn)
}

// Options tune a Conn. Zero values select the defaults.
type Options struct {
	// SendBuffer is the outbound queue length. Default: 256
	SendBuffer int

	// PongWait is how long the peer may stay silent. Default: 60s
	PongWait time.Duration

	// PingPeriod must be shorter than PongWait. Default: 90% of PongWait
	PingPeriod time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	return o
}

// Conn is one websocket peer.
type Conn struct {
	id      uint64
	ws      *websocket.Conn
	handler FrameHandler
	opts    Options

	mu     sync.Mutex
	send   chan []byte
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps an established websocket. Call Start to begin pumping.
func NewConn(ws *websocket.Conn, handler FrameHandler, opts Options) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		id:      connIDCounter.Add(1),
		ws:      ws,
		handler: handler,
		opts:    opts,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
	}
}

// ID returns the connection's unique id.
func (c *Conn) ID() uint64 {
	return c.id
}

// RemoteAddr returns the peer address, or "" for detached connections.
func (c *Conn) RemoteAddr() string {
	if c.ws == nil {
		return ""
	}
	return c.ws.RemoteAddr().String()
}

// Done is closed after the read side has finished and HandleClose ran.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Start launches the read and write goroutines.
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

// Send queues a frame. It reports false when the queue is full or the
// connection is closing; the frame is dropped in both cases.
func (c *Conn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		metrics.FramesDropped.Inc()
		logging.Warn().Uint64("conn", c.id).Msg("send queue full, dropping frame")
		return false
	}
}

// Close flushes queued frames, sends a close frame and tears the
// connection down. It is safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Conn) finish() {
	c.closeOnce.Do(func() {
		c.Close()
		if c.handler != nil {
			c.handler.HandleClose(c)
		}
		close(c.done)
	})
}

func (c *Conn) readPump() {
	defer func() {
		c.finish()
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		kind, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Uint64("conn", c.id).Msg("unexpected websocket close")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		c.handler.HandleFrame(c, frame)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug().Err(err).Uint64("conn", c.id).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package hub

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/modvote/internal/authz"
	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/protocol"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

var fakeIDs atomic.Uint64

type fakeConn struct {
	id     uint64
	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: fakeIDs.Add(1)}
}

func (c *fakeConn) ID() uint64 { return c.id }

func (c *fakeConn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		typ, err := protocol.PeekType(f)
		if err != nil {
			t.Fatalf("bad frame %s: %v", f, err)
		}
		out = append(out, typ)
	}
	return out
}

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []string
	events   []Event
	closed   []uint64
	trail    []string
	onMsg    func(s *Session, msg protocol.Message)
}

func (d *recordingDispatcher) HandleMessage(s *Session, msg protocol.Message) {
	d.mu.Lock()
	d.messages = append(d.messages, msg.MessageType())
	d.trail = append(d.trail, fmt.Sprintf("%d:%s", s.ID(), msg.MessageType()))
	d.mu.Unlock()
	if d.onMsg != nil {
		d.onMsg(s, msg)
	}
}

func (d *recordingDispatcher) HandleEvent(ev Event) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
}

func (d *recordingDispatcher) HandleClose(s *Session) {
	d.mu.Lock()
	d.closed = append(d.closed, s.ID())
	d.trail = append(d.trail, fmt.Sprintf("%d:close", s.ID()))
	d.mu.Unlock()
}

func (d *recordingDispatcher) snapshot() (messages []string, events int, closed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.messages...), len(d.events), len(d.closed)
}

func newHub(t *testing.T, d Dispatcher) *Hub {
	t.Helper()
	e, err := authz.NewEnforcer(nil)
	if err != nil {
		t.Fatal(err)
	}
	h := New(e)
	h.SetDispatcher(d)
	return h
}

func startHub(t *testing.T, d Dispatcher) *Hub {
	t.Helper()
	h := newHub(t, d)
	runHub(t, h)
	return h
}

func runHub(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRunRequiresDispatcher(t *testing.T) {
	e, err := authz.NewEnforcer(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := New(e).Run(context.Background()); err == nil {
		t.Error("expected error without dispatcher")
	}
}

func TestRoutingAndGating(t *testing.T) {
	d := &recordingDispatcher{}
	h := startHub(t, d)

	conn := newFakeConn()
	h.Accept(conn)

	h.Deliver(conn.ID(), []byte(`{"type":"Config.Start"}`))
	h.Deliver(conn.ID(), []byte(`not json`))
	h.Deliver(conn.ID(), []byte(`{"type":"Nope"}`))
	h.Deliver(conn.ID(), []byte(`{"type":"Config.Register"}`))
	h.Deliver(conn.ID(), []byte(`{"type":"Info.Subscribe"}`))

	eventually(t, func() bool {
		msgs, _, _ := d.snapshot()
		return len(msgs) == 2
	})
	msgs, _, _ := d.snapshot()
	if msgs[0] != protocol.TypeConfigRegister || msgs[1] != protocol.TypeInfoSubscribe {
		t.Errorf("dispatched %v", msgs)
	}
}

func TestConfigurerMayStart(t *testing.T) {
	d := &recordingDispatcher{}
	d.onMsg = func(s *Session, msg protocol.Message) {
		if msg.MessageType() == protocol.TypeConfigRegister {
			s.Grant(RoleConfigurer | RoleSubscriber)
		}
	}
	h := startHub(t, d)

	conn := newFakeConn()
	h.Accept(conn)
	h.Deliver(conn.ID(), []byte(`{"type":"Config.Register"}`))
	h.Deliver(conn.ID(), []byte(`{"type":"Config.Start"}`))

	eventually(t, func() bool {
		msgs, _, _ := d.snapshot()
		return len(msgs) == 2 && msgs[1] == protocol.TypeConfigStart
	})
}

func TestFrameAfterCloseIgnored(t *testing.T) {
	d := &recordingDispatcher{}
	h := startHub(t, d)

	conn := newFakeConn()
	h.Accept(conn)
	h.Disconnect(conn.ID())
	h.Deliver(conn.ID(), []byte(`{"type":"Config.Register"}`))

	eventually(t, func() bool {
		_, _, closed := d.snapshot()
		return closed == 1
	})
	h.Publish("sync")
	eventually(t, func() bool {
		_, events, _ := d.snapshot()
		return events == 1
	})
	msgs, _, _ := d.snapshot()
	if len(msgs) != 0 {
		t.Errorf("frame after close was dispatched: %v", msgs)
	}
	if h.SessionCount() != 0 {
		t.Errorf("SessionCount = %d", h.SessionCount())
	}
}

func TestQueuedSessionWorkKeepsOrder(t *testing.T) {
	const sessions = 50
	d := &recordingDispatcher{}
	h := newHub(t, d)

	// Everything is queued before the loop runs, as when it is busy.
	var want []string
	for i := 0; i < sessions; i++ {
		conn := newFakeConn()
		h.Accept(conn)
		h.Deliver(conn.ID(), []byte(`{"type":"Config.Register"}`))
		h.Disconnect(conn.ID())
		want = append(want,
			fmt.Sprintf("%d:%s", conn.ID(), protocol.TypeConfigRegister),
			fmt.Sprintf("%d:close", conn.ID()))
	}
	runHub(t, h)

	eventually(t, func() bool {
		_, _, closed := d.snapshot()
		return closed == sessions
	})
	if n := h.SessionCount(); n != 0 {
		t.Errorf("SessionCount = %d after every session closed, want 0", n)
	}

	d.mu.Lock()
	got := append([]string(nil), d.trail...)
	d.mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("dispatched %d steps, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBroadcastByRole(t *testing.T) {
	d := &recordingDispatcher{}
	h := startHub(t, d)

	provider, configurer, full := newFakeConn(), newFakeConn(), newFakeConn()
	ps := h.Accept(provider)
	cs := h.Accept(configurer)
	fs := h.Accept(full)

	eventually(t, func() bool { return h.SessionCount() == 3 })

	ps.Grant(RoleProvider)
	cs.Grant(RoleConfigurer | RoleSubscriber)
	fs.Grant(RoleSubscriber)
	full.full = true

	if n := h.Broadcast(Subscribers, protocol.PollStarted{}); n != 1 {
		t.Errorf("Broadcast to subscribers reached %d sessions, want 1", n)
	}
	if n := h.Broadcast(Providers, protocol.ExecutionStopRequest{}); n != 1 {
		t.Errorf("Broadcast to providers reached %d sessions, want 1", n)
	}
	h.Send(cs, protocol.OK{})

	if got := configurer.types(t); len(got) != 2 || got[0] != protocol.TypePollStarted || got[1] != protocol.TypeOK {
		t.Errorf("configurer got %v", got)
	}
	if got := provider.types(t); len(got) != 1 || got[0] != protocol.TypeExecutionStopRequest {
		t.Errorf("provider got %v", got)
	}
}

func TestSessionRoles(t *testing.T) {
	s := NewSession(newFakeConn())
	if s.Has(RoleProvider) || len(s.RoleNames()) != 0 {
		t.Fatal("new session should have no roles")
	}
	s.Grant(RoleConfigurer | RoleSubscriber)
	if !s.Has(RoleConfigurer) || !s.Has(RoleSubscriber) {
		t.Error("roles not granted")
	}
	s.Revoke(RoleSubscriber)
	if s.Has(RoleSubscriber) {
		t.Error("subscriber not revoked")
	}
	if names := s.RoleNames(); len(names) != 1 || names[0] != authz.RoleConfigurer {
		t.Errorf("RoleNames = %v", names)
	}
}

func TestShutdownClosesSessions(t *testing.T) {
	e, err := authz.NewEnforcer(nil)
	if err != nil {
		t.Fatal(err)
	}
	h := New(e)
	h.SetDispatcher(&recordingDispatcher{})

	conn := newFakeConn()
	h.Accept(conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	eventually(t, func() bool { return h.SessionCount() == 1 })
	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run returned %v", err)
	}
	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	if !closed {
		t.Error("session was not closed on shutdown")
	}

	// Publishing after shutdown must not block.
	h.Publish("late")
}

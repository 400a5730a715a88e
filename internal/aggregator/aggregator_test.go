// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package aggregator

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/protocol"
	"github.com/tomtom215/modvote/internal/twitch"
	"github.com/tomtom215/modvote/internal/viewer"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

var testSecret = []byte("extension-secret-for-tests-only!")

type fakeTwitch struct {
	mu          sync.Mutex
	subscribers map[string]bool
	subsGate    chan struct{}
	pubsubErr   error
	pubsub      []string
	revoked     []string
}

func (f *fakeTwitch) Authorize(_ context.Context, code string) (*twitch.Grant, protocol.Channel, error) {
	if code == "bad" {
		return nil, protocol.Channel{}, twitch.ErrMissingScopes
	}
	return &twitch.Grant{AccessToken: "token-" + code}, protocol.Channel{ID: 42, Name: "streamer"}, nil
}

func (f *fakeTwitch) Revoke(_ context.Context, grant *twitch.Grant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, grant.AccessToken)
	return nil
}

func (f *fakeTwitch) IsSubscriber(ctx context.Context, _ *twitch.Grant, _, userID string) (bool, error) {
	f.mu.Lock()
	gate := f.subsGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribers[userID], nil
}

func (f *fakeTwitch) SendPubSub(_ context.Context, _ string, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubsubErr != nil {
		return f.pubsubErr
	}
	f.pubsub = append(f.pubsub, string(message))
	return nil
}

func (f *fakeTwitch) revokedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.revoked)
}

func (f *fakeTwitch) pubsubMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pubsub...)
}

type fixture struct {
	t      *testing.T
	tw     *fakeTwitch
	clock  *clockwork.FakeClock
	server *Server
	url    string
}

func newFixture(t *testing.T, pubsubMax int) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		tw:    &fakeTwitch{subscribers: map[string]bool{}},
		clock: clockwork.NewFakeClock(),
	}
	f.server = NewServer(f.tw, Options{
		ExtensionSecret: testSecret,
		MinPollDuration: time.Second,
		PubSubMaxBytes:  pubsubMax,
		Clock:           f.clock,
	})
	srv := httptest.NewServer(f.server)
	t.Cleanup(func() {
		f.server.Shutdown()
		srv.Close()
	})
	f.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return f
}

type client struct {
	t  *testing.T
	ws *gws.Conn
}

func (f *fixture) dial() *client {
	f.t.Helper()
	ws, resp, err := gws.DefaultDialer.Dial(f.url, nil)
	if err != nil {
		f.t.Fatalf("dial: %v", err)
	}
	_ = resp.Body.Close()
	f.t.Cleanup(func() { _ = ws.Close() })
	return &client{t: f.t, ws: ws}
}

func (c *client) send(msg protocol.Message) {
	c.t.Helper()
	if err := c.ws.WriteMessage(gws.TextMessage, protocol.MustEncode(msg)); err != nil {
		c.t.Fatalf("write %s: %v", msg.MessageType(), err)
	}
}

func (c *client) read() protocol.Message {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := c.ws.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	msg, err := protocol.Decode(frame)
	if err != nil {
		c.t.Fatalf("decode %s: %v", frame, err)
	}
	return msg
}

func (c *client) expect(typ string) protocol.Message {
	c.t.Helper()
	msg := c.read()
	if msg.MessageType() != typ {
		c.t.Fatalf("got %s, want %s", msg.MessageType(), typ)
	}
	return msg
}

func (c *client) expectClosed() {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := c.ws.ReadMessage()
		if err == nil {
			continue
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.t.Fatal("connection still open")
		}
		return
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fixture) hub() *client {
	f.t.Helper()
	c := f.dial()
	c.send(protocol.Authorization{Data: protocol.AuthorizationData{Code: "abc"}})
	msg := c.expect(protocol.TypeAuthorizationSuccess).(*protocol.AuthorizationSuccess)
	if msg.Data.ID != 42 || msg.Data.Name != "streamer" {
		f.t.Fatalf("channel = %+v", msg.Data)
	}
	return c
}

func (f *fixture) channel() *Channel {
	f.t.Helper()
	ch, ok := f.server.Channel("42")
	if !ok {
		f.t.Fatal("channel 42 not registered")
	}
	return ch
}

func (f *fixture) configure(hub *client, mode protocol.VotingMode) {
	f.t.Helper()
	hub.send(protocol.SetConfig{Data: protocol.SetConfigData{Mode: mode, Participants: protocol.ParticipantsAll}})
	ch := f.channel()
	waitFor(f.t, "config", func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return ch.config != nil
	})
}

func token(t *testing.T, role, userID string) string {
	t.Helper()
	claims := &viewer.Claims{
		ChannelID:    "42",
		OpaqueUserID: "U" + userID,
		UserID:       userID,
		Role:         role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// join connects a viewer and consumes its Role message.
func (f *fixture) join(userID, wantRole string) *client {
	f.t.Helper()
	c := f.dial()
	c.send(protocol.ViewerAuthorization{Token: token(f.t, viewer.TokenRoleViewer, userID)})
	role := c.expect(protocol.TypeRole).(*protocol.Role)
	if role.Data != wantRole {
		f.t.Fatalf("role = %q, want %q", role.Data, wantRole)
	}
	return c
}

func pollData() protocol.StartPollData {
	return protocol.StartPollData{
		AllowNothing: true,
		Options: []protocol.StartPollOption{
			{ID: "a", MinLength: 10, MaxLength: 60},
			{ID: "b", MinLength: 10, MaxLength: 60},
		},
	}
}

func num(n int) *int       { return &n }
func str(s string) *string { return &s }

func TestChannelAuthorization(t *testing.T) {
	f := newFixture(t, 0)
	f.hub()

	dup := f.dial()
	dup.send(protocol.Authorization{Data: protocol.AuthorizationData{Code: "other"}})
	dup.expectClosed()
	waitFor(t, "duplicate grant revoked", func() bool { return f.tw.revokedCount() == 1 })

	if _, ok := f.server.Channel("42"); !ok {
		t.Error("original channel was unregistered")
	}
}

func TestFailedAuthorizationReported(t *testing.T) {
	f := newFixture(t, 0)
	c := f.dial()
	c.send(protocol.Authorization{Data: protocol.AuthorizationData{Code: "bad"}})

	msg := c.expect(protocol.TypeAuthorizationError)
	ae, ok := msg.(*protocol.AuthorizationError)
	if !ok || ae.Reason != "The authorization did not grant the required permissions" {
		t.Errorf("got %#v", msg)
	}
	c.expectClosed()

	if channels, _ := f.server.Stats(); channels != 0 {
		t.Errorf("channels = %d after failed authorization, want 0", channels)
	}
}

func TestRejectedConnections(t *testing.T) {
	tests := []struct {
		name string
		msg  protocol.Message
	}{
		{"invalid viewer token", protocol.ViewerAuthorization{Token: "not.a.token"}},
		{"unknown first message", protocol.PollStarted{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			c := f.dial()
			c.send(tt.msg)
			c.expectClosed()
		})
	}
}

func TestViewerReceivesChannelState(t *testing.T) {
	f := newFixture(t, 0)
	hub := f.hub()
	f.configure(hub, protocol.ModePlurality)
	hub.send(protocol.NextPoll{In: 60})
	ch := f.channel()
	waitFor(t, "next poll", func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return !ch.nextPoll.IsZero()
	})
	f.clock.Advance(15 * time.Second)

	v := f.join("u1", "linked")
	cfg := v.expect(protocol.TypeSetConfig).(*protocol.SetConfig)
	if cfg.Data.Mode != protocol.ModePlurality {
		t.Errorf("mode = %q", cfg.Data.Mode)
	}
	next := v.expect(protocol.TypeNextPoll).(*protocol.NextPoll)
	if next.In != 45 {
		t.Errorf("next poll in = %d, want 45", next.In)
	}
}

func TestViewerReauthorization(t *testing.T) {
	f := newFixture(t, 0)
	v := f.join("u1", "linked")

	v.send(protocol.ViewerAuthorization{Token: token(t, viewer.TokenRoleModerator, "u1")})
	if role := v.expect(protocol.TypeRole).(*protocol.Role); role.Data != "moderator" {
		t.Errorf("role = %q, want moderator", role.Data)
	}
}

func TestLinkedViewerUpgradedOnAuthorization(t *testing.T) {
	f := newFixture(t, 0)
	f.tw.subscribers["u1"] = true

	v := f.join("u1", "linked")
	f.hub()

	if role := v.expect(protocol.TypeRole).(*protocol.Role); role.Data != "subscriber" {
		t.Errorf("role = %q, want subscriber", role.Data)
	}
}

func TestSlowSubscriptionCheckDoesNotDelayJoin(t *testing.T) {
	f := newFixture(t, 0)
	f.tw.subscribers["u1"] = true
	f.tw.subsGate = make(chan struct{})
	hub := f.hub()
	f.configure(hub, protocol.ModePlurality)

	v := f.join("u1", "linked")
	v.expect(protocol.TypeSetConfig)
	if _, viewers := f.server.Stats(); viewers != 1 {
		t.Fatalf("registered viewers = %d, want 1", viewers)
	}

	hub.send(protocol.StartPoll{Data: pollData()})
	hub.expect(protocol.TypePollStarted)
	v.expect(protocol.TypeStartPoll)

	close(f.tw.subsGate)
	if role := v.expect(protocol.TypeRole).(*protocol.Role); role.Data != "subscriber" {
		t.Errorf("role = %q, want subscriber", role.Data)
	}
}

func TestPollLifecycle(t *testing.T) {
	f := newFixture(t, 0)
	hub := f.hub()
	f.configure(hub, protocol.ModePlurality)
	v := f.join("u1", "linked")
	v.expect(protocol.TypeSetConfig)

	hub.send(protocol.StartPoll{Data: pollData()})
	hub.expect(protocol.TypePollStarted)
	start := v.expect(protocol.TypeStartPoll).(*protocol.StartPoll)
	if start.Data.Duration != 1 {
		t.Errorf("duration = %d, want the 1s minimum", start.Data.Duration)
	}

	hub.send(protocol.StartPoll{Data: pollData()})
	if perr := hub.expect(protocol.TypePollError).(*protocol.PollError); perr.Reason != reasonPollRunning {
		t.Errorf("reason = %q", perr.Reason)
	}

	v.send(protocol.Vote{Data: protocol.VoteData{Modification: str("a"), Duration: num(90)}})
	waitFor(t, "vote", func() bool {
		for _, vc := range f.server.viewersOf("42") {
			if vc.voter.Take(false).Vote.Kind == viewer.ModificationVote {
				return true
			}
		}
		return false
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("poll timer not armed: %v", err)
	}
	f.clock.Advance(time.Second)

	v.expect(protocol.TypePollStopped)
	result := hub.expect(protocol.TypePollResult).(*protocol.PollResult)
	if got := result.Data.Mods["a"]; got.Count != 1 || got.Duration != 60 {
		t.Errorf("a = %+v, want 1 vote clamped to 60", got)
	}
	if got := result.Data.Mods["b"]; got.Count != 0 {
		t.Errorf("b = %+v", got)
	}
	if f.channel().Polling() {
		t.Error("poll still running")
	}
	for _, vc := range f.server.viewersOf("42") {
		if vc.voter.Take(false).Vote.Kind != viewer.NoVote {
			t.Error("vote not cleared after the poll")
		}
	}
}

func TestStartPollWithoutConfig(t *testing.T) {
	f := newFixture(t, 0)
	hub := f.hub()

	hub.send(protocol.StartPoll{Data: pollData()})
	if perr := hub.expect(protocol.TypePollError).(*protocol.PollError); perr.Reason != reasonNoConfig {
		t.Errorf("reason = %q", perr.Reason)
	}
}

func TestInvalidStartPollAnswered(t *testing.T) {
	f := newFixture(t, 0)
	hub := f.hub()

	if err := hub.ws.WriteMessage(gws.TextMessage, []byte(`{"type":"StartPoll","data":{"duration":30,"options":[]}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	hub.expect(protocol.TypePollError)
}

func TestHubStopsPoll(t *testing.T) {
	f := newFixture(t, 0)
	hub := f.hub()
	f.configure(hub, protocol.ModePlurality)
	v := f.join("u1", "linked")
	v.expect(protocol.TypeSetConfig)

	hub.send(protocol.StartPoll{Data: pollData()})
	hub.expect(protocol.TypePollStarted)
	v.expect(protocol.TypeStartPoll)

	hub.send(protocol.PollStopped{})
	v.expect(protocol.TypePollStopped)
	if f.channel().Polling() {
		t.Error("poll still running")
	}
}

func TestIntermediateModeTally(t *testing.T) {
	f := newFixture(t, 0)
	hub := f.hub()
	f.configure(hub, protocol.ModeViewers)
	v := f.join("u1", "linked")
	v.expect(protocol.TypeSetConfig)

	v.send(protocol.Vote{Data: protocol.VoteData{Mode: str(string(protocol.ModeWeightedRandom))}})
	waitFor(t, "mode vote", func() bool {
		for _, vc := range f.server.viewersOf("42") {
			if vc.voter.Take(false).Mode == protocol.ModeWeightedRandom {
				return true
			}
		}
		return false
	})

	f.server.Tick()
	result := v.expect(protocol.TypePollResult).(*protocol.PollResult)
	if result.Data.Mode.WeightedRandom != 1 || result.Data.Mode.Plurality != 0 {
		t.Errorf("mode = %+v", result.Data.Mode)
	}
}

func TestPubSubDelivery(t *testing.T) {
	f := newFixture(t, 5*1024)
	hub := f.hub()

	hub.send(protocol.PollWinner{Data: protocol.PollWinnerData{ID: "a", Votes: 2, TotalVotes: 3}})
	waitFor(t, "pubsub message", func() bool { return len(f.tw.pubsubMessages()) == 1 })
	if msg := f.tw.pubsubMessages()[0]; !strings.Contains(msg, protocol.TypePollWinner) {
		t.Errorf("pubsub message = %s", msg)
	}
}

func TestPubSubFallsBackToSockets(t *testing.T) {
	f := newFixture(t, 5*1024)
	f.tw.pubsubErr = errors.New("pubsub unavailable")
	hub := f.hub()
	v := f.join("u1", "linked")

	hub.send(protocol.PollWinner{Data: protocol.PollWinnerData{ID: "a", Votes: 2, TotalVotes: 3}})
	winner := v.expect(protocol.TypePollWinner).(*protocol.PollWinner)
	if winner.Data.ID != "a" {
		t.Errorf("winner = %+v", winner.Data)
	}
}

func TestChannelCloseNotifiesViewers(t *testing.T) {
	f := newFixture(t, 0)
	hub := f.hub()
	hub.send(protocol.NextPoll{In: 30})
	ch := f.channel()
	waitFor(t, "next poll", func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return !ch.nextPoll.IsZero()
	})
	v := f.join("u1", "linked")
	v.expect(protocol.TypeNextPoll)

	_ = hub.ws.Close()
	v.expect(protocol.TypeNextPollCanceled)
	waitFor(t, "token revoked", func() bool { return f.tw.revokedCount() == 1 })
	waitFor(t, "channel unregistered", func() bool {
		_, ok := f.server.Channel("42")
		return !ok
	})
}

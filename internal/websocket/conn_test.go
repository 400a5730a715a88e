// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package websocket

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/modvote/internal/logging"
)

func init() {
	logging.SetLogger(zerolog.New(io.Discard))
}

type recorder struct {
	mu     sync.Mutex
	frames []string
	closed chan struct{}
	echo   bool
}

func newRecorder(echo bool) *recorder {
	return &recorder{closed: make(chan struct{}), echo: echo}
}

func (r *recorder) HandleFrame(c *Conn, frame []byte) {
	r.mu.Lock()
	r.frames = append(r.frames, string(frame))
	r.mu.Unlock()
	if r.echo {
		c.Send(frame)
	}
}

func (r *recorder) HandleClose(*Conn) {
	close(r.closed)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

func startServer(t *testing.T, h FrameHandler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewConn(ws, h, Options{}).Start()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestConnRoundTripPreservesOrder(t *testing.T) {
	server := newRecorder(true)
	srv := startServer(t, server)

	client := newRecorder(false)
	conn, err := Dial(context.Background(), wsURL(srv), client, Options{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	for _, f := range []string{"a", "b", "c"} {
		if !conn.Send([]byte(f)) {
			t.Fatalf("Send(%q) rejected", f)
		}
	}

	waitFor(t, func() bool { return len(client.snapshot()) == 3 })
	if got := strings.Join(client.snapshot(), ""); got != "abc" {
		t.Errorf("echoed frames = %q, want abc", got)
	}
	if got := strings.Join(server.snapshot(), ""); got != "abc" {
		t.Errorf("server frames = %q, want abc", got)
	}
}

func TestConnCloseNotifiesBothSides(t *testing.T) {
	server := newRecorder(false)
	srv := startServer(t, server)

	client := newRecorder(false)
	conn, err := Dial(context.Background(), wsURL(srv), client, Options{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	conn.Close()
	conn.Close()

	select {
	case <-server.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the close")
	}
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client Done not closed")
	}
	if conn.Send([]byte("late")) {
		t.Error("Send after Close should report false")
	}
}

func TestSendDropsWhenQueueFull(t *testing.T) {
	c := &Conn{send: make(chan []byte, 1), done: make(chan struct{})}
	if !c.Send([]byte("1")) {
		t.Fatal("first send should fit")
	}
	if c.Send([]byte("2")) {
		t.Error("second send should be dropped")
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{PongWait: 10 * time.Second, PingPeriod: 20 * time.Second}.withDefaults()
	if o.PingPeriod != 9*time.Second {
		t.Errorf("PingPeriod = %v, want 9s", o.PingPeriod)
	}
	if o.SendBuffer != defaultSendBuffer {
		t.Errorf("SendBuffer = %d", o.SendBuffer)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://ok.example"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://ok.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := check(r); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}
}

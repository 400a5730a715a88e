// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache[string, bool], *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	c := New[string, bool](ttl, WithClock[string, bool](clock), WithCleanupInterval[string, bool](time.Hour))
	t.Cleanup(c.Close)
	return c, clock
}

func TestGetSet(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("a", true)
	v, ok := c.Get("a")
	if !ok || !v {
		t.Fatalf("Get = %v, %v; want true, true", v, ok)
	}

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.TotalKeys != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if rate := c.HitRate(); rate != 50 {
		t.Errorf("HitRate = %v, want 50", rate)
	}
}

func TestExpiration(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)

	c.Set("a", true)
	clock.Advance(30 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry expired too early")
	}
	clock.Advance(31 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
	if c.GetStats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", c.GetStats().Evictions)
	}
}

func TestSetWithTTLAndDelete(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)

	c.SetWithTTL("short", true, time.Second)
	c.Set("long", false)
	clock.Advance(2 * time.Second)

	if _, ok := c.Get("short"); ok {
		t.Error("short entry should be gone")
	}
	if v, ok := c.Get("long"); !ok || v {
		t.Errorf("long = %v, %v; want false, true", v, ok)
	}

	c.Delete("long")
	if _, ok := c.Get("long"); ok {
		t.Error("deleted entry still present")
	}
}

func TestCleanup(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)
	c.Set("a", true)
	c.Set("b", true)
	clock.Advance(2 * time.Minute)

	c.cleanup()
	if c.Len() != 0 {
		t.Errorf("Len after cleanup = %d, want 0", c.Len())
	}
	if got := c.GetStats().Evictions; got != 2 {
		t.Errorf("Evictions = %d, want 2", got)
	}
}

func TestCloseIdempotent(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	c.Close()
	c.Close()
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			for j := 0; j < 100; j++ {
				c.Set(key, j%2 == 0)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 8 {
		t.Errorf("Len = %d, want 8", c.Len())
	}
}

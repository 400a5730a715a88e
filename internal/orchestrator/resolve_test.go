// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package orchestrator

import (
	"testing"

	"github.com/tomtom215/modvote/internal/protocol"
)

// fixedRand draws a fixed value (capped to n-1) and reverses on shuffle.
type fixedRand struct {
	draw int
}

func (r fixedRand) IntN(n int) int {
	if r.draw >= n {
		return n - 1
	}
	return r.draw
}

func (fixedRand) Shuffle(n int, swap func(i, j int)) {
	for i := 0; i < n/2; i++ {
		swap(i, n-1-i)
	}
}

func mods(kv ...interface{}) map[string]protocol.ModResult {
	out := make(map[string]protocol.ModResult)
	for i := 0; i < len(kv); i += 3 {
		out[kv[i].(string)] = protocol.ModResult{Count: kv[i+1].(int), Duration: kv[i+2].(int)}
	}
	return out
}

func TestResolvePlurality(t *testing.T) {
	order := []string{"p|a", "p|b", "p|c"}

	tests := []struct {
		name         string
		mods         map[string]protocol.ModResult
		nothing      int
		allowNothing bool
		wantOK       bool
		wantID       string
		wantVotes    int
		wantTotal    int
	}{
		{"clear winner", mods("p|a", 1, 10, "p|b", 3, 20, "p|c", 2, 30), 0, false, true, "p|b", 3, 6},
		{"tie goes to first offered", mods("p|c", 2, 30, "p|a", 2, 10), 0, false, true, "p|a", 2, 4},
		{"nothing strictly greater", mods("p|a", 2, 10), 3, true, true, protocol.NothingID, 3, 5},
		{"nothing tie loses", mods("p|a", 2, 10), 2, true, true, "p|a", 2, 4},
		{"nothing ignored when not allowed", mods("p|a", 1, 10), 5, false, true, "p|a", 1, 1},
		{"only nothing votes", mods("p|a", 0, 0), 1, true, true, protocol.NothingID, 1, 1},
		{"no votes", mods("p|a", 0, 0), 0, true, false, "", 0, 0},
		{"no votes when nothing disallowed", mods("p|a", 0, 0), 4, false, false, "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := protocol.PollResultData{Mods: tt.mods, Nothing: tt.nothing}
			out, ok := Resolve(result, order, tt.allowNothing, protocol.ModePlurality, fixedRand{})
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if out.ID != tt.wantID || out.Votes != tt.wantVotes || out.Total != tt.wantTotal {
				t.Errorf("got %+v, want id=%s votes=%d total=%d", out, tt.wantID, tt.wantVotes, tt.wantTotal)
			}
			if out.Nothing != (tt.wantID == protocol.NothingID) {
				t.Errorf("Nothing = %v", out.Nothing)
			}
		})
	}
}

func TestResolveWeightedRandom(t *testing.T) {
	order := []string{"p|a", "p|b"}
	result := protocol.PollResultData{Mods: mods("p|a", 2, 10, "p|b", 3, 20), Nothing: 1}

	tests := []struct {
		draw   int
		wantID string
	}{
		{0, "p|a"},
		{1, "p|a"},
		{2, "p|b"},
		{4, "p|b"},
		{5, protocol.NothingID},
	}

	for _, tt := range tests {
		out, ok := Resolve(result, order, true, protocol.ModeWeightedRandom, fixedRand{draw: tt.draw})
		if !ok {
			t.Fatalf("draw %d: no outcome", tt.draw)
		}
		if out.ID != tt.wantID {
			t.Errorf("draw %d: got %s, want %s", tt.draw, out.ID, tt.wantID)
		}
		if out.Total != 6 {
			t.Errorf("draw %d: total = %d, want 6", tt.draw, out.Total)
		}
	}
}

func TestResolveUnknownIDsAfterOffered(t *testing.T) {
	result := protocol.PollResultData{Mods: mods("z|late", 2, 10, "p|a", 2, 10)}
	out, ok := Resolve(result, []string{"p|a"}, false, protocol.ModePlurality, fixedRand{})
	if !ok || out.ID != "p|a" {
		t.Errorf("got %+v, %v", out, ok)
	}
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		configured protocol.VotingMode
		prefs      protocol.ModeResult
		want       protocol.VotingMode
	}{
		{protocol.ModePlurality, protocol.ModeResult{WeightedRandom: 9}, protocol.ModePlurality},
		{protocol.ModeWeightedRandom, protocol.ModeResult{Plurality: 9}, protocol.ModeWeightedRandom},
		{protocol.ModeViewers, protocol.ModeResult{Plurality: 1, WeightedRandom: 2}, protocol.ModeWeightedRandom},
		{protocol.ModeViewers, protocol.ModeResult{Plurality: 2, WeightedRandom: 2}, protocol.ModePlurality},
		{protocol.ModeViewers, protocol.ModeResult{}, protocol.ModePlurality},
	}

	for _, tt := range tests {
		if got := EffectiveMode(tt.configured, tt.prefs); got != tt.want {
			t.Errorf("EffectiveMode(%s, %+v) = %s, want %s", tt.configured, tt.prefs, got, tt.want)
		}
	}
}

func TestSelectCandidates(t *testing.T) {
	opts := func() []protocol.StartPollOption {
		return []protocol.StartPollOption{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	}

	if got := SelectCandidates(opts(), 0, fixedRand{}); len(got) != 3 || got[0].ID != "a" {
		t.Errorf("limit 0 should keep order, got %v", got)
	}
	if got := SelectCandidates(opts(), 3, fixedRand{}); len(got) != 3 || got[0].ID != "a" {
		t.Errorf("limit equal to count should keep order, got %v", got)
	}
	got := SelectCandidates(opts(), 2, fixedRand{})
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("limit 2 = %v, want shuffled [c b]", got)
	}
}

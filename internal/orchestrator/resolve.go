// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package orchestrator

import (
	"sort"

	"github.com/tomtom215/modvote/internal/protocol"
)

// Rand is the randomness used for shuffling candidates and weighted draws.
// *rand.Rand from math/rand/v2 implements it.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Outcome is the resolved winner of a poll.
type Outcome struct {
	Mode     protocol.VotingMode
	Nothing  bool
	ID       string
	Votes    int
	Duration int
	Total    int
}

// EffectiveMode picks the evaluation mode. In viewers mode the viewers'
// preference decides and a tie goes to plurality.
func EffectiveMode(configured protocol.VotingMode, prefs protocol.ModeResult) protocol.VotingMode {
	switch configured {
	case protocol.ModeWeightedRandom:
		return protocol.ModeWeightedRandom
	case protocol.ModeViewers:
		if prefs.WeightedRandom > prefs.Plurality {
			return protocol.ModeWeightedRandom
		}
	}
	return protocol.ModePlurality
}

// resultOrder lists the option ids in the order they were offered, followed
// by any other ids present in the result, sorted.
func resultOrder(mods map[string]protocol.ModResult, order []string) []string {
	seen := make(map[string]struct{}, len(order))
	ids := make([]string, 0, len(mods))
	for _, id := range order {
		if _, ok := mods[id]; ok {
			if _, dup := seen[id]; !dup {
				ids = append(ids, id)
				seen[id] = struct{}{}
			}
		}
	}
	var rest []string
	for id := range mods {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// Resolve picks the winner of a final tally. ok is false when nobody voted.
//
// Plurality takes the strictly greatest count, the earliest option winning
// ties, and "nothing" wins only when allowed and strictly greater.
// Weighted random draws r in [0, total) and walks the cumulative counts of
// the options in order, then "nothing".
func Resolve(result protocol.PollResultData, order []string, allowNothing bool, mode protocol.VotingMode, rng Rand) (Outcome, bool) {
	ids := resultOrder(result.Mods, order)

	total := 0
	for _, id := range ids {
		total += result.Mods[id].Count
	}
	nothing := 0
	if allowNothing {
		nothing = result.Nothing
		total += nothing
	}
	if total <= 0 {
		return Outcome{}, false
	}

	out := Outcome{Mode: mode, Total: total}

	if mode == protocol.ModeWeightedRandom {
		chosen := rng.IntN(total)
		count := 0
		for _, id := range ids {
			r := result.Mods[id]
			count += r.Count
			if count > chosen {
				out.ID, out.Votes, out.Duration = id, r.Count, r.Duration
				return out, true
			}
		}
		out.Nothing, out.ID, out.Votes = true, protocol.NothingID, nothing
		return out, true
	}

	best := -1
	for _, id := range ids {
		r := result.Mods[id]
		if r.Count > best {
			best = r.Count
			out.ID, out.Votes, out.Duration = id, r.Count, r.Duration
		}
	}
	if allowNothing && nothing > best {
		out = Outcome{Mode: mode, Total: total, Nothing: true, ID: protocol.NothingID, Votes: nothing}
	}
	return out, true
}

// SelectCandidates shuffles and truncates options when 0 < limit < len.
func SelectCandidates(options []protocol.StartPollOption, limit int, rng Rand) []protocol.StartPollOption {
	if limit <= 0 || limit >= len(options) {
		return options
	}
	rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return options[:limit]
}

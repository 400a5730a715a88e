// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package viewer

import "github.com/tomtom215/modvote/internal/protocol"

// Poll is the part of a running poll needed to count votes.
type Poll struct {
	AllowNothing bool
	Options      []protocol.StartPollOption
	Participants protocol.Participants
}

type durationSum struct {
	count int
	sum   int
}

// Tally counts the ballots of voters for poll. With reset every vote is
// cleared as it is read, including those of viewers below the minimum
// role. Mode preferences are only counted in viewers mode.
func Tally(voters []*Voter, poll Poll, mode protocol.VotingMode, reset bool) protocol.PollResultData {
	index := make(map[string]int, len(poll.Options))
	for i, o := range poll.Options {
		if _, dup := index[o.ID]; !dup {
			index[o.ID] = i
		}
	}

	minRole := MinimumRole(poll.Participants)
	counts := make([]int, len(poll.Options))
	durations := make([]durationSum, len(poll.Options))
	result := protocol.PollResultData{Mods: make(map[string]protocol.ModResult, len(poll.Options))}

	for _, v := range voters {
		b := v.Take(reset)
		if v.Role() < minRole {
			continue
		}

		if mode == protocol.ModeViewers {
			countMode(&result.Mode, b.Mode)
		}

		switch b.Vote.Kind {
		case NothingVote:
			if poll.AllowNothing {
				result.Nothing++
			}
		case ModificationVote:
			i, ok := index[b.Vote.Modification]
			if !ok {
				continue
			}
			counts[i]++
			if b.Vote.Duration == nil {
				continue
			}
			o := poll.Options[i]
			d := min(max(*b.Vote.Duration, o.MinLength), o.MaxLength)
			durations[i].count++
			durations[i].sum += d
		}
	}

	for id, i := range index {
		r := protocol.ModResult{Count: counts[i]}
		if durations[i].count > 0 {
			r.Duration = durations[i].sum / durations[i].count
		}
		result.Mods[id] = r
	}
	return result
}

// ModeTally counts only the mode preferences of eligible voters. It is the
// intermediate tally of a viewers-mode channel between polls.
func ModeTally(voters []*Voter, participants protocol.Participants) protocol.PollResultData {
	minRole := MinimumRole(participants)
	result := protocol.PollResultData{Mods: map[string]protocol.ModResult{}}
	for _, v := range voters {
		if v.Role() < minRole {
			continue
		}
		countMode(&result.Mode, v.Take(false).Mode)
	}
	return result
}

func countMode(m *protocol.ModeResult, pref protocol.VotingMode) {
	switch pref {
	case protocol.ModePlurality:
		m.Plurality++
	case protocol.ModeWeightedRandom:
		m.WeightedRandom++
	}
}

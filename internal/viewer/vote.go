// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package viewer

import (
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tomtom215/modvote/internal/protocol"
)

// ErrThrottled is returned when a viewer votes faster than its bucket allows.
var ErrThrottled = errors.New("vote rate exceeded")

// VoteKind discriminates Vote.
type VoteKind int

const (
	NoVote VoteKind = iota
	ModificationVote
	NothingVote
)

// Vote is a viewer's choice. Modification is only meaningful for
// ModificationVote. Duration is kept across choice changes and only used
// with ModificationVote.
type Vote struct {
	Kind         VoteKind
	Modification string
	Duration     *int
}

// Ballot is a vote plus the viewer's preferred evaluation mode.
// Mode is empty when the viewer has no preference.
type Ballot struct {
	Vote Vote
	Mode protocol.VotingMode
}

// Merge applies a partial update in this order: mode, duration,
// modification, noModification.
func (b *Ballot) Merge(data protocol.VoteData) {
	if data.Mode != nil && *data.Mode != "" {
		if *data.Mode == protocol.ModeReset {
			b.Mode = ""
		} else {
			b.Mode = protocol.VotingMode(*data.Mode)
		}
	}

	if data.Duration != nil && *data.Duration > 0 {
		d := *data.Duration
		b.Vote.Duration = &d
	}

	if data.Modification != nil && *data.Modification != "" {
		if *data.Modification == protocol.ModeReset {
			b.Vote.Kind = NoVote
			b.Vote.Modification = ""
		} else {
			b.Vote.Kind = ModificationVote
			b.Vote.Modification = *data.Modification
		}
	}

	if data.NoModification != nil {
		b.Vote.Modification = ""
		b.Vote.Duration = nil
		if *data.NoModification {
			b.Vote.Kind = NothingVote
		} else {
			b.Vote.Kind = NoVote
		}
	}
}

// Voter is one connected viewer.
type Voter struct {
	mu      sync.Mutex
	claims  *Claims
	role    Role
	ballot  Ballot
	limiter *rate.Limiter
}

// NewVoter creates a voter. A zero limit disables throttling.
func NewVoter(claims *Claims, role Role, limit rate.Limit, burst int) *Voter {
	v := &Voter{claims: claims, role: role}
	if limit > 0 {
		if burst < 1 {
			burst = 1
		}
		v.limiter = rate.NewLimiter(limit, burst)
	}
	return v
}

// Claims returns the current token claims.
func (v *Voter) Claims() *Claims {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.claims
}

// ChannelID returns the channel of the current token.
func (v *Voter) ChannelID() string {
	return v.Claims().ChannelID
}

// Role returns the resolved role.
func (v *Voter) Role() Role {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.role
}

// Reauthorize replaces the token and role. The ballot is kept.
func (v *Voter) Reauthorize(claims *Claims, role Role) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.claims = claims
	v.role = role
}

// SetRole replaces the role, e.g. after a late subscription check.
func (v *Voter) SetRole(role Role) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.role = role
}

// Apply merges a vote update.
func (v *Voter) Apply(data protocol.VoteData) (Ballot, error) {
	if v.limiter != nil && !v.limiter.Allow() {
		return v.Take(false), ErrThrottled
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.ballot.Merge(data)
	return v.ballot, nil
}

// Take returns the ballot. With reset the vote is cleared and the mode
// preference kept.
func (v *Voter) Take(reset bool) Ballot {
	v.mu.Lock()
	defer v.mu.Unlock()
	b := v.ballot
	if reset {
		v.ballot.Vote = Vote{}
	}
	return b
}

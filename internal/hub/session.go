// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package hub

import "github.com/tomtom215/modvote/internal/authz"

// Sender is the transport side of a session. *websocket.Conn implements it.
type Sender interface {
	ID() uint64
	Send(frame []byte) bool
	Close()
}

// Role is a set of session role flags.
type Role uint8

// Session roles.
const (
	RoleProvider Role = 1 << iota
	RoleConfigurer
	RoleSubscriber
)

// Session is one local connection. Roles are only read and written on the
// hub loop.
type Session struct {
	id    uint64
	conn  Sender
	roles Role
}

// NewSession wraps a transport connection.
func NewSession(conn Sender) *Session {
	return &Session{id: conn.ID(), conn: conn}
}

// ID returns the session id, which equals the connection id.
func (s *Session) ID() uint64 { return s.id }

// Has reports whether the session holds every role in r.
func (s *Session) Has(r Role) bool { return s.roles&r == r }

// Grant adds roles.
func (s *Session) Grant(r Role) { s.roles |= r }

// Revoke removes roles.
func (s *Session) Revoke(r Role) { s.roles &^= r }

// RoleNames returns the policy subjects for the session's roles.
func (s *Session) RoleNames() []string {
	var names []string
	if s.Has(RoleProvider) {
		names = append(names, authz.RoleProvider)
	}
	if s.Has(RoleConfigurer) {
		names = append(names, authz.RoleConfigurer)
	}
	if s.Has(RoleSubscriber) {
		names = append(names, authz.RoleSubscriber)
	}
	return names
}

// Predicate selects broadcast recipients.
type Predicate func(*Session) bool

// Recipient selectors.
var (
	All         Predicate = func(*Session) bool { return true }
	Providers   Predicate = func(s *Session) bool { return s.Has(RoleProvider) }
	Configurers Predicate = func(s *Session) bool { return s.Has(RoleConfigurer) }
	Subscribers Predicate = func(s *Session) bool { return s.Has(RoleSubscriber) }
)

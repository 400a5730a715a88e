// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package authz decides which hub session roles may send which message types.

The rules live in an embedded Casbin model and policy. A session is checked
as the implicit role "anyone" plus every role it holds:

	e, err := authz.NewEnforcer(nil)
	ok, err := e.Allowed([]string{"provider"}, "Config.Change", authz.ActionHandle)

An alternative policy file can be supplied through EnforcerConfig.PolicyPath
to lock a deployment down further, for example to require Configurer for
Authorization.
*/
package authz

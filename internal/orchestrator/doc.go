// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package orchestrator runs polls from the streamer's side.

Manager is the hub's Dispatcher. It owns the channel authorization state
machine

	Idle --Authorization--> Authorizing --Authorization.Success--> Authorized
	  ^                                                               |
	  +------------------- aggregator disconnect ---------------------+

together with the poll timer, the pollActive flag and the channel identity.
Every method runs on the hub loop, so none of this state is locked.

A poll starts from the timer or from Config.Start: the enabled, initialized
modifications become StartPoll options (shuffled and truncated when
MaxModifications caps them) and are sent to the aggregator. When the final
PollResult comes back the winner is picked by Resolve and the owning
provider receives an Execution.StartRequest.

Link holds the websocket to the aggregator. It dials whenever a target URL
is set, retrying with a fixed backoff, and publishes what it receives onto
the hub loop as events.
*/
package orchestrator

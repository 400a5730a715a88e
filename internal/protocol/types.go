// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package protocol

// Message type discriminators.
const (
	TypeClientRegister    = "Client.Register"
	TypeClientInitialize  = "Client.Initialize"
	TypeClientInitialized = "Client.Initialized"

	TypeExecutionStartRequest = "Execution.StartRequest"
	TypeExecutionStarted      = "Execution.Started"
	TypeExecutionStopped      = "Execution.Stopped"
	TypeExecutionStopRequest  = "Execution.StopRequest"

	TypeConfigRegister  = "Config.Register"
	TypeConfigAvailable = "Config.Available"
	TypeConfigChange    = "Config.Change"
	TypeConfigStart     = "Config.Start"
	TypeConfigStop      = "Config.Stop"

	TypeInfoSubscribe   = "Info.Subscribe"
	TypeInfoUnsubscribe = "Info.Unsubscribe"
	TypeInfoOpen        = "Info.Open"
	TypeInfoMessage     = "Info.Message"

	TypeAuthorization        = "Authorization"
	TypeAuthorizationSuccess = "Authorization.Success"
	TypeAuthorizationError   = "Authorization.Error"
	TypeOK                   = "OK"

	TypeStartPoll        = "StartPoll"
	TypePollStarted      = "PollStarted"
	TypePollStopped      = "PollStopped"
	TypePollError        = "PollError"
	TypePollResult       = "PollResult"
	TypePollWinner       = "PollWinner"
	TypeNextPoll         = "NextPoll"
	TypeNextPollCanceled = "NextPollCanceled"
	TypeSetConfig        = "SetConfig"

	TypeViewerAuthorization = "ViewerAuthorization"
	TypeRole                = "Role"
	TypeVote                = "Vote"
)

// VotingMode selects how a poll winner is chosen.
type VotingMode string

// Voting modes. ModeViewers lets the viewers vote on the mode as well.
const (
	ModePlurality      VotingMode = "plurality"
	ModeWeightedRandom VotingMode = "weighted_random"
	ModeViewers        VotingMode = "viewers"
)

// Participants restricts who may vote.
type Participants string

// Participant groups.
const (
	ParticipantsAll         Participants = "all"
	ParticipantsLoggedIn    Participants = "logged_in"
	ParticipantsSubscribers Participants = "subscribers"
)

// NothingID is the PollWinner id used when "no modification" wins.
const NothingID = "nothing"

// ModeReset in a Vote clears the viewer's mode preference; as a
// modification value it clears the modification vote.
const ModeReset = "reset"

// MaxModificationLength caps every modification duration, in seconds.
const MaxModificationLength = 120

// MinPollDuration is the shortest poll the aggregator will run, in seconds.
const MinPollDuration = 30
